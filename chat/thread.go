package chat

import "time"

// User is the minimal profile projection embedded into thread responses.
// The account system owns the full profile; we only read what list and
// thread views need.
type User struct {
	ID          int64
	DisplayName string
	Avatar      string
}

// Thread is the single persistent conversation between exactly two
// participants. Messages are embedded and append-only: insertion order is
// chronological order.
type Thread struct {
	ID           int64
	Participants [2]User
	Messages     []Message
	CreateTime   time.Time
	UpdateTime   time.Time
}

// HasParticipant reports whether uid is one of the two thread parties.
func (t *Thread) HasParticipant(uid int64) bool {
	return t.Participants[0].ID == uid || t.Participants[1].ID == uid
}

// OtherParty returns the participant that is not viewerID.
// If viewerID is not a participant, the second party is returned.
func (t *Thread) OtherParty(viewerID int64) User {
	if t.Participants[0].ID == viewerID {
		return t.Participants[1]
	}
	return t.Participants[0]
}

// Message is one ordered entry in a thread. Seq is dense and 1-based,
// assigned by the store under the thread row lock. CreateTime is server
// assigned and non-decreasing within a thread.
type Message struct {
	Seq        int32
	SenderID   int64
	Content    Content
	CreateTime time.Time
}

// SortParties canonicalizes a participant pair to (lo, hi). The storage
// layer keys threads by the canonical pair so that (A,B) and (B,A) hit the
// same unique index.
func SortParties(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}
