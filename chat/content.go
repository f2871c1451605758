package chat

import "strings"

// ContentKind tags the three legal shapes of message content.
type ContentKind int

const (
	TextOnly ContentKind = iota + 1
	AttachmentOnly
	TextAndAttachment
)

// Content is the payload of a message: text, an attachment, or both,
// never neither. The fields are unexported so the only way to build a
// Content is through the constructors below, which reject the empty case.
type Content struct {
	text       string
	attachment *Attachment
}

// NewContent builds message content from optional text and an optional
// attachment. Text is trimmed; whitespace-only text counts as absent.
// Returns a ValidationError when both parts are absent.
func NewContent(text string, att *Attachment) (Content, error) {
	text = strings.TrimSpace(text)
	if text == "" && att == nil {
		return Content{}, NewValidationError("message must carry text or an attachment")
	}
	return Content{text: text, attachment: att}, nil
}

// TextContent builds text-only content.
func TextContent(text string) (Content, error) {
	return NewContent(text, nil)
}

// AttachmentContent builds attachment-only content.
func AttachmentContent(att Attachment) Content {
	return Content{attachment: &att}
}

func (c Content) Text() string { return c.text }

// Attachment returns a copy of the attachment metadata, or nil.
func (c Content) Attachment() *Attachment {
	if c.attachment == nil {
		return nil
	}
	att := *c.attachment
	return &att
}

func (c Content) Kind() ContentKind {
	switch {
	case c.text != "" && c.attachment != nil:
		return TextAndAttachment
	case c.attachment != nil:
		return AttachmentOnly
	default:
		return TextOnly
	}
}
