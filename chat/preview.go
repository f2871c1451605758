package chat

import "time"

// Markers shown in list views when the last message has no text.
const (
	MarkerImage    = "[image]"
	MarkerVideo    = "[video]"
	MarkerFile     = "[file]"
	MarkerNoMsgYet = "No messages yet"
)

// ThreadPreview is the per-thread row of the caller's thread list.
type ThreadPreview struct {
	ThreadID    int64
	OtherParty  User
	LastMessage string
	UpdateTime  time.Time
}

// Preview projects a thread onto its list row for the given viewer. Pure
// read over already-fetched data; only the last message is inspected, so
// threads loaded with just their newest message project correctly.
func Preview(t *Thread, viewerID int64) ThreadPreview {
	return ThreadPreview{
		ThreadID:    t.ID,
		OtherParty:  t.OtherParty(viewerID),
		LastMessage: lastMessageSummary(t),
		UpdateTime:  t.UpdateTime,
	}
}

func lastMessageSummary(t *Thread) string {
	if len(t.Messages) == 0 {
		return MarkerNoMsgYet
	}
	last := t.Messages[len(t.Messages)-1]
	if text := last.Content.Text(); text != "" {
		return text
	}
	att := last.Content.Attachment()
	if att == nil {
		// Unreachable for content built via constructors.
		return MarkerNoMsgYet
	}
	switch att.Kind {
	case KindImage:
		return MarkerImage
	case KindVideo:
		return MarkerVideo
	default:
		return MarkerFile
	}
}
