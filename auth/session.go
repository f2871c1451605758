package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const whoamiTimeout = 3 * time.Second

// SessionClient validates bearer tokens against the account system's
// session endpoint. The credential stays opaque to the chat core: it is
// forwarded as-is and exchanged for a user id.
type SessionClient struct {
	rc *resty.Client
}

type whoamiResp struct {
	UserID int64 `json:"user_id"`
}

func NewSessionClient(baseURL string) *SessionClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(whoamiTimeout)
	return &SessionClient{rc: rc}
}

func (c *SessionClient) Auth(r *http.Request) (int64, error) {
	token := bearerToken(r)
	if token == "" {
		return 0, fmt.Errorf("missing bearer credential")
	}

	var out whoamiResp
	resp, err := c.rc.R().
		SetContext(r.Context()).
		SetAuthToken(token).
		SetResult(&out).
		Get("/v1/sessions/whoami")
	if err != nil {
		return 0, fmt.Errorf("session service: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("session service rejected credential, status %d", resp.StatusCode())
	}
	if out.UserID == 0 {
		return 0, fmt.Errorf("session service returned empty user id")
	}
	return out.UserID, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
