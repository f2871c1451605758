package attach

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pborman/uuid"

	"github.com/tradeboard/chat/chat"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

var videoExts = map[string]bool{
	".mp4":  true,
	".webm": true,
}

// Classify decides the attachment kind from the declared type and the file
// name, and enforces the size ceiling. Pure with respect to storage: the
// caller writes the bytes separately, after this check passes.
func Classify(filename, declaredMime string, size int64) (chat.Kind, error) {
	if size <= 0 {
		return "", chat.NewValidationError("empty attachment")
	}
	if size > chat.MaxAttachmentBytes {
		return "", chat.NewValidationError("attachment exceeds %d bytes", int64(chat.MaxAttachmentBytes))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	mime := strings.ToLower(declaredMime)

	switch {
	case imageExts[ext], strings.HasPrefix(mime, "image/"):
		return chat.KindImage, nil
	case videoExts[ext], strings.HasPrefix(mime, "video/"):
		return chat.KindVideo, nil
	case ext != "":
		// Anything else with a recognizable name is kept as a plain document.
		return chat.KindDocument, nil
	case mime != "" && mime != "application/octet-stream":
		return chat.KindDocument, nil
	}
	return "", chat.NewValidationError("cannot classify attachment %q", filename)
}

// Sniff detects a MIME type from the leading bytes of an upload. Used when
// the client declares nothing useful (empty or application/octet-stream).
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

// StorageKey derives a collision-resistant blob key for an upload. A uuid
// prefix keeps concurrent uploads of the same filename apart; the sanitized
// original name is kept as a suffix so operators can still tell blobs apart.
func StorageKey(filename string) string {
	id := strings.ReplaceAll(uuid.New(), "-", "")
	base := sanitizeName(filepath.Base(filename))
	if base == "" {
		return id
	}
	return id + "_" + base
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
