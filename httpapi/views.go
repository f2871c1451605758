package httpapi

import "github.com/tradeboard/chat/chat"

// Wire views returned by the REST surface and consumed by the poll client.
// Timestamps are unix seconds.

type UserView struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

type AttachmentView struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Size int64  `json:"size"`
}

type MessageView struct {
	Seq        int32           `json:"seq"`
	SenderID   int64           `json:"sender_id"`
	Text       string          `json:"text,omitempty"`
	Attachment *AttachmentView `json:"attachment,omitempty"`
	CreateTime int64           `json:"create_time"`
}

type ThreadView struct {
	ID           int64         `json:"id"`
	Participants [2]UserView   `json:"participants"`
	Messages     []MessageView `json:"messages"`
	CreateTime   int64         `json:"create_time"`
	UpdateTime   int64         `json:"update_time"`
}

type PreviewView struct {
	ThreadID    int64    `json:"thread_id"`
	OtherParty  UserView `json:"other_party"`
	LastMessage string   `json:"last_message"`
	UpdateTime  int64    `json:"update_time"`
}

// ThreadListResp carries the caller's previews plus the advertised poll
// interval, so clients do not hardcode their refresh cadence.
type ThreadListResp struct {
	Threads         []PreviewView `json:"threads"`
	PollIntervalSec int           `json:"poll_interval_sec"`
}

func NewUserView(u chat.User) UserView {
	return UserView{ID: u.ID, DisplayName: u.DisplayName, Avatar: u.Avatar}
}

func NewMessageView(m chat.Message) MessageView {
	v := MessageView{
		Seq:        m.Seq,
		SenderID:   m.SenderID,
		Text:       m.Content.Text(),
		CreateTime: m.CreateTime.Unix(),
	}
	if att := m.Content.Attachment(); att != nil {
		v.Attachment = &AttachmentView{Path: att.Path, Kind: string(att.Kind), Size: att.Size}
	}
	return v
}

func NewThreadView(t *chat.Thread) *ThreadView {
	v := &ThreadView{
		ID:         t.ID,
		CreateTime: t.CreateTime.Unix(),
		UpdateTime: t.UpdateTime.Unix(),
	}
	for i, u := range t.Participants {
		v.Participants[i] = NewUserView(u)
	}
	for _, m := range t.Messages {
		v.Messages = append(v.Messages, NewMessageView(m))
	}
	return v
}

func NewPreviewView(p chat.ThreadPreview) PreviewView {
	return PreviewView{
		ThreadID:    p.ThreadID,
		OtherParty:  NewUserView(p.OtherParty),
		LastMessage: p.LastMessage,
		UpdateTime:  p.UpdateTime.Unix(),
	}
}
