package attach

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var blobBucket = []byte("blobs")

// BoltStore is the single-node blob store backed by a bbolt file. Each Put
// is its own write transaction; keys come from StorageKey and never repeat,
// so there is no shared mutable state between concurrent uploads.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the blob database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blobBucket).Put([]byte(key), data)
	}); err != nil {
		return "", err
	}
	return key, nil
}

func (s *BoltStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(blobBucket).Get([]byte(path))
		if v == nil {
			return fmt.Errorf("blob %q not found", path)
		}
		out = append(out, v...)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}
