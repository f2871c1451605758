package auth

import (
	"fmt"
	"net/http"
	"strconv"
)

// MockClient trusts an x-uid cookie or header. Development only.
type MockClient struct {
	Client
}

func (c *MockClient) Auth(r *http.Request) (int64, error) {
	var uidStr string

	if c, err := r.Cookie("x-uid"); err == nil {
		uidStr = c.Value
	}
	if uidStr == "" {
		uidStr = r.Header.Get("x-uid")
	}

	if uidStr == "" {
		return 0, fmt.Errorf("empty x-uid from cookie or header")
	}
	uid, err := strconv.ParseInt(uidStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("error parse x-uid as integer: %v", err)
	}
	return uid, nil
}
