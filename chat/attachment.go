package chat

// MaxAttachmentBytes is the attachment size ceiling. Checked before any
// blob write so a rejected upload never reaches storage.
const MaxAttachmentBytes = 10 << 20 // 10 MiB

// Kind classifies an attachment for preview and rendering purposes.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Attachment references externally stored bytes. The blob store owns the
// bytes; the message owns this metadata. Immutable once appended.
type Attachment struct {
	Path string
	Kind Kind
	Size int64
}
