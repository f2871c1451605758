package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/tradeboard/chat/attach"
	"github.com/tradeboard/chat/chat"
	"github.com/tradeboard/chat/feed"
)

const DefaultPutTimeout = 10 * time.Second

// ChatAPI is the application service behind the REST surface: it owns the
// validation order and composes the store, the classifier, the blob store
// and the analytics feed. Handlers stay thin.
type ChatAPI struct {
	store      chat.Store
	blobs      attach.Store
	feed       *feed.Feed
	putTimeout time.Duration
}

func NewChatAPI(store chat.Store, blobs attach.Store, f *feed.Feed, putTimeout time.Duration) *ChatAPI {
	if putTimeout <= 0 {
		putTimeout = DefaultPutTimeout
	}
	return &ChatAPI{store: store, blobs: blobs, feed: f, putTimeout: putTimeout}
}

// Resolve returns the canonical thread between the caller and otherID,
// creating it when absent.
func (a *ChatAPI) Resolve(ctx context.Context, callerID, otherID int64) (*chat.Thread, error) {
	return a.store.Resolve(ctx, callerID, otherID)
}

// Threads projects the caller's thread list, most recently updated first.
func (a *ChatAPI) Threads(ctx context.Context, uid int64) ([]chat.ThreadPreview, error) {
	threads, err := a.store.ListForUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]chat.ThreadPreview, 0, len(threads))
	for _, t := range threads {
		out = append(out, chat.Preview(t, uid))
	}
	return out, nil
}

// Thread loads one full thread for a participant.
func (a *ChatAPI) Thread(ctx context.Context, uid, threadID int64) (*chat.Thread, error) {
	return a.store.Get(ctx, threadID, uid)
}

// Upload is an incoming attachment, fully buffered. The handler bounds the
// read, so Data never exceeds the ceiling by more than one byte.
type Upload struct {
	Filename     string
	DeclaredMime string
	Data         []byte
}

type AppendInput struct {
	ThreadID int64
	SenderID int64
	Text     string
	Upload   *Upload
}

// Append validates eagerly and in order: thread exists, sender is a
// participant, content present, attachment within the ceiling — all before
// the blob write, so a rejected request never leaves partial state. The
// store re-checks participation under the thread lock.
func (a *ChatAPI) Append(ctx context.Context, in AppendInput) (*chat.Thread, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Upload == nil {
		return nil, chat.NewValidationError("message must carry text or an attachment")
	}

	if err := a.store.Authorize(ctx, in.ThreadID, in.SenderID); err != nil {
		return nil, err
	}

	var att *chat.Attachment
	if up := in.Upload; up != nil {
		size := int64(len(up.Data))
		mime := up.DeclaredMime
		if mime == "" || mime == "application/octet-stream" {
			mime = attach.Sniff(up.Data)
		}
		kind, err := attach.Classify(up.Filename, mime, size)
		if err != nil {
			return nil, err
		}

		key := attach.StorageKey(up.Filename)
		pctx, cancel := context.WithTimeout(ctx, a.putTimeout)
		path, err := a.blobs.Put(pctx, key, up.Data)
		cancel()
		if err != nil {
			return nil, &chat.StorageError{Op: "put attachment", Err: err}
		}
		attachmentBytesTotal.Add(float64(size))
		att = &chat.Attachment{Path: path, Kind: kind, Size: size}
	}

	content, err := chat.NewContent(text, att)
	if err != nil {
		return nil, err
	}

	t, err := a.store.Append(ctx, in.ThreadID, in.SenderID, content)
	if err != nil {
		return nil, err
	}

	if n := len(t.Messages); n > 0 {
		last := t.Messages[n-1]
		a.feed.Publish(ctx, feed.Event{
			ThreadID:    t.ID,
			Seq:         last.Seq,
			SenderID:    last.SenderID,
			ContentKind: contentKindLabel(last.Content.Kind()),
			CreateTime:  last.CreateTime.Unix(),
		})
	}
	return t, nil
}

// Blob reads attachment bytes back for an authenticated caller.
func (a *ChatAPI) Blob(ctx context.Context, path string) ([]byte, error) {
	pctx, cancel := context.WithTimeout(ctx, a.putTimeout)
	defer cancel()
	data, err := a.blobs.Get(pctx, path)
	if err != nil {
		glog.V(5).Infof("blob read %q err: %v", path, err)
		return nil, &chat.StorageError{Op: "get attachment", Err: err}
	}
	return data, nil
}

func contentKindLabel(k chat.ContentKind) string {
	switch k {
	case chat.TextOnly:
		return "text"
	case chat.AttachmentOnly:
		return "attachment"
	default:
		return "text+attachment"
	}
}
