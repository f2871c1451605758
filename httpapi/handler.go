package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/tradeboard/chat/auth"
	"github.com/tradeboard/chat/chat"
)

const uidKey = "uid"

// DefaultPollIntervalSec is advertised to clients in the thread list
// response. A documented default, not a protocol requirement.
const DefaultPollIntervalSec = 3

// Handler binds the chat API to the REST surface.
type Handler struct {
	api  *ChatAPI
	auth auth.Client
}

func NewHandler(api *ChatAPI, authClient auth.Client) *Handler {
	return &Handler{api: api, auth: authClient}
}

func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1", h.authRequired)
	v1.GET("/threads", h.listThreads)
	v1.POST("/threads", h.resolveThread)
	v1.GET("/threads/:threadId", h.getThread)
	v1.POST("/threads/:threadId/messages", h.appendMessage)
	v1.GET("/attachments/*path", h.getAttachment)
}

func (h *Handler) authRequired(c *gin.Context) {
	uid, err := h.auth.Auth(c.Request)
	if err != nil {
		glog.V(5).Infof("authenticate error: %v", err)
		requestsTotal.WithLabelValues("auth", "401").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		return
	}
	c.Set(uidKey, uid)
	c.Next()
}

func callerID(c *gin.Context) int64 {
	return c.GetInt64(uidKey)
}

func (h *Handler) listThreads(c *gin.Context) {
	previews, err := h.api.Threads(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, "list_threads", err)
		return
	}

	resp := ThreadListResp{
		Threads:         make([]PreviewView, 0, len(previews)),
		PollIntervalSec: DefaultPollIntervalSec,
	}
	for _, p := range previews {
		resp.Threads = append(resp.Threads, NewPreviewView(p))
	}
	requestsTotal.WithLabelValues("list_threads", "200").Inc()
	c.JSON(http.StatusOK, resp)
}

type resolveThreadReq struct {
	PartyID int64 `json:"party_id" binding:"required"`
}

func (h *Handler) resolveThread(c *gin.Context) {
	var req resolveThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		requestsTotal.WithLabelValues("resolve_thread", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.api.Resolve(c.Request.Context(), callerID(c), req.PartyID)
	if err != nil {
		h.writeError(c, "resolve_thread", err)
		return
	}
	requestsTotal.WithLabelValues("resolve_thread", "200").Inc()
	c.JSON(http.StatusOK, NewThreadView(t))
}

func (h *Handler) getThread(c *gin.Context) {
	threadID, ok := threadParam(c)
	if !ok {
		return
	}

	t, err := h.api.Thread(c.Request.Context(), callerID(c), threadID)
	if err != nil {
		h.writeError(c, "get_thread", err)
		return
	}
	requestsTotal.WithLabelValues("get_thread", "200").Inc()
	c.JSON(http.StatusOK, NewThreadView(t))
}

type appendMessageReq struct {
	Text string `json:"text"`
}

func (h *Handler) appendMessage(c *gin.Context) {
	threadID, ok := threadParam(c)
	if !ok {
		return
	}

	in := AppendInput{
		ThreadID: threadID,
		SenderID: callerID(c),
	}

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		in.Text = c.PostForm("text")
		upload, err := readUpload(c)
		if err != nil {
			h.writeError(c, "append_message", err)
			return
		}
		in.Upload = upload
	} else {
		var req appendMessageReq
		if err := c.ShouldBindJSON(&req); err != nil {
			requestsTotal.WithLabelValues("append_message", "400").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Text = req.Text
	}

	t, err := h.api.Append(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, "append_message", err)
		return
	}
	requestsTotal.WithLabelValues("append_message", "200").Inc()
	c.JSON(http.StatusOK, NewThreadView(t))
}

func (h *Handler) getAttachment(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		requestsTotal.WithLabelValues("get_attachment", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty attachment path"})
		return
	}

	data, err := h.api.Blob(c.Request.Context(), path)
	if err != nil {
		h.writeError(c, "get_attachment", err)
		return
	}
	requestsTotal.WithLabelValues("get_attachment", "200").Inc()
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// readUpload buffers the optional file part. The read is bounded at one
// byte past the ceiling: enough to detect an oversized upload, without
// letting a client stream gigabytes.
func readUpload(c *gin.Context) (*Upload, error) {
	fh, err := c.FormFile("file")
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, chat.NewValidationError("bad file part: %v", err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, chat.NewValidationError("bad file part: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, chat.MaxAttachmentBytes+1))
	if err != nil {
		return nil, chat.NewValidationError("error reading file part: %v", err)
	}

	return &Upload{
		Filename:     fh.Filename,
		DeclaredMime: fh.Header.Get("Content-Type"),
		Data:         data,
	}, nil
}

func threadParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("threadId"), 10, 64)
	if err != nil || id <= 0 {
		requestsTotal.WithLabelValues("thread_param", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad thread id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case chat.IsValidation(err):
		status = http.StatusBadRequest
	case err == chat.ErrNotParticipant:
		status = http.StatusForbidden
	case err == chat.ErrThreadNotFound:
		status = http.StatusNotFound
	case chat.IsStorage(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		glog.Errorf("%s: %v", op, err)
		// Do not leak storage internals to the client.
		requestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	glog.V(5).Infof("%s rejected: %v", op, err)
	requestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
	c.JSON(status, gin.H{"error": err.Error()})
}
