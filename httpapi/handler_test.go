package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeboard/chat/attach"
	"github.com/tradeboard/chat/auth"
	"github.com/tradeboard/chat/chat"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	blobs, err := attach.OpenBolt(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	store := newMemStore(
		chat.User{ID: 1, DisplayName: "alice"},
		chat.User{ID: 2, DisplayName: "bob"},
	)
	api := NewChatAPI(store, blobs, nil, time.Second)
	handler := NewHandler(api, &auth.MockClient{})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler.Register(engine)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func asUser(srv *httptest.Server, uid int64) *resty.Request {
	return resty.New().
		SetBaseURL(srv.URL).
		SetHeader("x-uid", strconv.FormatInt(uid, 10)).
		SetHeader("Content-Type", "application/json").
		R()
}

func TestRejectsMissingCredential(t *testing.T) {
	srv := newTestServer(t)

	resp, err := resty.New().SetBaseURL(srv.URL).R().Get("/api/v1/threads")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestResolveThreadIdempotentOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	var t1, t2 ThreadView
	resp, err := asUser(srv, 1).
		SetBody(`{"party_id": 2}`).
		SetResult(&t1).
		Post("/api/v1/threads")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	resp, err = asUser(srv, 2).
		SetBody(`{"party_id": 1}`).
		SetResult(&t2).
		Post("/api/v1/threads")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	assert.Equal(t, t1.ID, t2.ID)
	assert.Equal(t, "alice", t1.Participants[0].DisplayName)
	assert.Equal(t, "bob", t1.Participants[1].DisplayName)
}

func TestResolveSelfThreadOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, err := asUser(srv, 1).
		SetBody(`{"party_id": 1}`).
		Post("/api/v1/threads")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func resolveThreadID(t *testing.T, srv *httptest.Server) int64 {
	t.Helper()
	var tv ThreadView
	resp, err := asUser(srv, 1).
		SetBody(`{"party_id": 2}`).
		SetResult(&tv).
		Post("/api/v1/threads")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	return tv.ID
}

func TestAppendTextOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := resolveThreadID(t, srv)

	var tv ThreadView
	resp, err := asUser(srv, 1).
		SetBody(`{"text": "Is this available?"}`).
		SetResult(&tv).
		Post("/api/v1/threads/" + strconv.FormatInt(id, 10) + "/messages")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	require.Len(t, tv.Messages, 1)
	assert.Equal(t, "Is this available?", tv.Messages[0].Text)
	assert.Equal(t, int64(1), tv.Messages[0].SenderID)
}

func TestAppendEmptyOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := resolveThreadID(t, srv)

	resp, err := asUser(srv, 1).
		SetBody(`{"text": "  "}`).
		Post("/api/v1/threads/" + strconv.FormatInt(id, 10) + "/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestAppendByStrangerOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := resolveThreadID(t, srv)

	resp, err := asUser(srv, 3).
		SetBody(`{"text": "hi"}`).
		Post("/api/v1/threads/" + strconv.FormatInt(id, 10) + "/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}

func TestAppendUnknownThreadOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, err := asUser(srv, 1).
		SetBody(`{"text": "hi"}`).
		Post("/api/v1/threads/424242/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestMultipartAppendAndFetchAttachment(t *testing.T) {
	srv := newTestServer(t)
	id := resolveThreadID(t, srv)

	photo := []byte("\x89PNG\r\n\x1a\nfake image bytes")

	var tv ThreadView
	resp, err := asUser(srv, 2).
		SetFileReader("file", "photo.png", bytes.NewReader(photo)).
		SetFormData(map[string]string{"text": ""}).
		SetResult(&tv).
		Post("/api/v1/threads/" + strconv.FormatInt(id, 10) + "/messages")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	require.Len(t, tv.Messages, 1)
	att := tv.Messages[0].Attachment
	require.NotNil(t, att)
	assert.Equal(t, "image", att.Kind)
	assert.Equal(t, int64(len(photo)), att.Size)
	assert.Empty(t, tv.Messages[0].Text)

	resp, err = asUser(srv, 1).Get("/api/v1/attachments/" + att.Path)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, photo, resp.Body())
}

func TestThreadListOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := resolveThreadID(t, srv)

	_, err := asUser(srv, 2).
		SetBody(`{"text": "still for sale"}`).
		Post("/api/v1/threads/" + strconv.FormatInt(id, 10) + "/messages")
	require.NoError(t, err)

	var out ThreadListResp
	resp, err := asUser(srv, 1).
		SetResult(&out).
		Get("/api/v1/threads")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	assert.Equal(t, DefaultPollIntervalSec, out.PollIntervalSec)
	require.Len(t, out.Threads, 1)
	assert.Equal(t, id, out.Threads[0].ThreadID)
	assert.Equal(t, "still for sale", out.Threads[0].LastMessage)
	assert.Equal(t, int64(2), out.Threads[0].OtherParty.ID)
}
