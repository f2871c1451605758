package poll

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tradeboard/chat/httpapi"
)

const clientTimeout = 10 * time.Second

// Client is the resty-backed Fetcher talking to the chat REST surface.
// The bearer credential is handed in at construction and attached to every
// request; nothing is read from ambient state.
type Client struct {
	rc *resty.Client
}

func NewClient(baseURL, token string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(clientTimeout)
	return &Client{rc: rc}
}

func (c *Client) Threads(ctx context.Context) ([]httpapi.PreviewView, error) {
	var out httpapi.ThreadListResp
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/threads")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list threads: status %d", resp.StatusCode())
	}
	return out.Threads, nil
}

func (c *Client) Thread(ctx context.Context, threadID int64) (*httpapi.ThreadView, error) {
	var out httpapi.ThreadView
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/threads/" + strconv.FormatInt(threadID, 10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get thread %d: status %d", threadID, resp.StatusCode())
	}
	return &out, nil
}
