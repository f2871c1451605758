package auth

import "net/http"

// Client resolves the opaque bearer credential on a request to a user id.
// Session issuance is owned by the account system; the chat core only asks
// "which participant is calling", or rejects.
type Client interface {
	// Auth authenticates the current user, returns the uid.
	Auth(r *http.Request) (int64, error)
}
