package attach

import "context"

//go:generate mockgen -source=blob.go -destination=mock/blob.go -package=mock

// Store durably stores attachment bytes. The chat core decides what is
// stored and under which key; the engine behind this interface is a
// collaborator, not part of the core.
type Store interface {
	// Put stores data under key and returns the reference path that the
	// message will carry. The ctx deadline bounds the write.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get reads the bytes for a reference path previously returned by Put.
	Get(ctx context.Context, path string) ([]byte, error)
}
