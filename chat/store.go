package chat

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
)

// Store is the persistence port of the chat core.
type Store interface {
	// Resolve returns the single thread between a and b, creating it when
	// absent. Idempotent under either argument order; concurrent calls with
	// the same pair collapse to one thread.
	Resolve(ctx context.Context, a, b int64) (*Thread, error)

	// Get loads the full thread with messages and participant profiles.
	// Returns ErrNotParticipant when viewerID is not a thread party.
	Get(ctx context.Context, threadID, viewerID int64) (*Thread, error)

	// Authorize checks that senderID may post to the thread without loading
	// messages. Used to reject an append before the blob write happens.
	Authorize(ctx context.Context, threadID, senderID int64) error

	// Append adds one message with a server-assigned seq and timestamp and
	// returns the full updated thread.
	Append(ctx context.Context, threadID, senderID int64, content Content) (*Thread, error)

	// ListForUser returns the caller's threads ordered by update time DESC,
	// each loaded with at most its newest message.
	ListForUser(ctx context.Context, uid int64) ([]*Thread, error)
}

const (
	getThreadByPairSQL = "SELECT id FROM threads WHERE party_lo=? AND party_hi=?"
	insertThreadSQL    = "INSERT INTO threads (party_lo,party_hi,next_seq,create_time,update_time,last_post_time) VALUES (?,?,1,?,?,?)"
	getThreadSQL       = "SELECT id,party_lo,party_hi,create_time,update_time FROM threads WHERE id=?"
	lockThreadSQL      = "SELECT party_lo,party_hi,next_seq,last_post_time FROM threads WHERE id=? FOR UPDATE"
	bumpThreadSQL      = "UPDATE threads SET next_seq=next_seq+1, update_time=?, last_post_time=? WHERE id=?"
	listThreadsSQL     = "SELECT id,party_lo,party_hi,create_time,update_time FROM threads WHERE party_lo=? OR party_hi=? ORDER BY update_time DESC"

	insertMsgSQL = "INSERT INTO thread_msgs (thread_id,seq,sender_id,body,att_path,att_kind,att_size,create_time) VALUES (?,?,?,?,?,?,?,?)"
	getMsgsSQL   = "SELECT seq,sender_id,body,att_path,att_kind,att_size,create_time FROM thread_msgs WHERE thread_id=? ORDER BY seq ASC"
	lastMsgSQL   = "SELECT seq,sender_id,body,att_path,att_kind,att_size,create_time FROM thread_msgs WHERE thread_id=? ORDER BY seq DESC LIMIT 1"

	getUsersSQL = "SELECT id,display_name,avatar FROM users WHERE id IN (?,?)"
)

// threadStore implements Store on MySQL.
//
// Serialization points:
//   - thread creation races collapse on the UNIQUE KEY (party_lo, party_hi):
//     a dup-key insert means "already exists", so the loser re-fetches;
//   - concurrent appends to one thread serialize on the SELECT ... FOR UPDATE
//     of the thread row, which guards next_seq and last_post_time.
type threadStore struct {
	*sql.DB
}

func NewThreadStore(db *sql.DB) Store {
	return &threadStore{db}
}

func (s *threadStore) withTx(ctx context.Context, exec func(ctx context.Context, tx *sql.Tx) error, opts ...*sql.TxOptions) error {
	var txOpts *sql.TxOptions
	if len(opts) == 0 {
		txOpts = &sql.TxOptions{
			Isolation: sql.LevelRepeatableRead,
			ReadOnly:  false,
		}
	} else {
		txOpts = opts[0]
	}
	tx, err := s.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	if err := exec(ctx, tx); err != nil {
		if err2 := tx.Rollback(); err2 != nil {
			glog.Errorf("failed to rollback: %v", err2)
		}
		return err
	}

	return tx.Commit()
}

// IsDupKeyError reports MySQL error 1062 (duplicate key).
func IsDupKeyError(err error) bool {
	if val, ok := err.(*mysql.MySQLError); ok {
		return val.Number == 1062
	}
	return false
}

func (s *threadStore) Resolve(ctx context.Context, a, b int64) (*Thread, error) {
	if a == b {
		return nil, NewValidationError("cannot open a thread with yourself")
	}
	lo, hi := SortParties(a, b)

	var id int64
	err := s.QueryRowContext(ctx, getThreadByPairSQL, lo, hi).Scan(&id)
	switch {
	case err == nil:
		return s.load(ctx, id)
	case err != sql.ErrNoRows:
		return nil, err
	}

	now := time.Now()
	res, err := s.ExecContext(ctx, insertThreadSQL, lo, hi, now, now, now)
	if err != nil {
		// Lost the creation race: the winner's row satisfies this call.
		if IsDupKeyError(err) {
			glog.V(5).Infof("thread pair (%d,%d) created concurrently, re-fetching", lo, hi)
			if err := s.QueryRowContext(ctx, getThreadByPairSQL, lo, hi).Scan(&id); err != nil {
				return nil, err
			}
			return s.load(ctx, id)
		}
		return nil, err
	}
	if id, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *threadStore) Get(ctx context.Context, threadID, viewerID int64) (*Thread, error) {
	t, err := s.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !t.HasParticipant(viewerID) {
		return nil, ErrNotParticipant
	}
	return t, nil
}

func (s *threadStore) Authorize(ctx context.Context, threadID, senderID int64) error {
	var lo, hi int64
	var createTime, updateTime time.Time
	var id int64
	err := s.QueryRowContext(ctx, getThreadSQL, threadID).Scan(&id, &lo, &hi, &createTime, &updateTime)
	if err == sql.ErrNoRows {
		return ErrThreadNotFound
	}
	if err != nil {
		return err
	}
	if senderID != lo && senderID != hi {
		return ErrNotParticipant
	}
	return nil
}

func (s *threadStore) Append(ctx context.Context, threadID, senderID int64, content Content) (*Thread, error) {
	if err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the thread row: seq assignment and the timestamp clamp must
		// not interleave between concurrent appends.
		var lo, hi int64
		var seq int32
		var lastPost time.Time
		row := tx.QueryRowContext(ctx, lockThreadSQL, threadID)
		if err := row.Scan(&lo, &hi, &seq, &lastPost); err != nil {
			if err == sql.ErrNoRows {
				return ErrThreadNotFound
			}
			glog.Errorf("lock thread %d err: %v", threadID, err)
			return err
		}

		// Re-checked under the lock; the cheap pre-check outside the tx may
		// be stale.
		if senderID != lo && senderID != hi {
			return ErrNotParticipant
		}

		// Server-assigned timestamp, clamped so message N is never older
		// than message N-1 even if the wall clock steps back.
		ts := time.Now()
		if ts.Before(lastPost) {
			ts = lastPost
		}

		var body, attPath, attKind string
		var attSize int64
		body = content.Text()
		if att := content.Attachment(); att != nil {
			attPath = att.Path
			attKind = string(att.Kind)
			attSize = att.Size
		}

		if _, err := tx.ExecContext(ctx, insertMsgSQL, threadID, seq, senderID, body, attPath, attKind, attSize, ts); err != nil {
			glog.Errorf("insert message exec err: %v", err)
			return err
		}
		if _, err := tx.ExecContext(ctx, bumpThreadSQL, ts, ts, threadID); err != nil {
			glog.Errorf("bump thread seq exec err: %v", err)
			return err
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable}); err != nil {
		return nil, err
	}

	return s.load(ctx, threadID)
}

func (s *threadStore) ListForUser(ctx context.Context, uid int64) ([]*Thread, error) {
	rows, err := s.QueryContext(ctx, listThreadsSQL, uid, uid)
	if err != nil {
		glog.Errorf("list threads query err: %v", err)
		return nil, err
	}
	defer rows.Close()

	var out []*Thread
	for rows.Next() {
		var t Thread
		var lo, hi int64
		if err := rows.Scan(&t.ID, &lo, &hi, &t.CreateTime, &t.UpdateTime); err != nil {
			return nil, err
		}
		t.Participants = [2]User{{ID: lo}, {ID: hi}}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range out {
		msg, err := s.lastMessage(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			t.Messages = []Message{*msg}
		}
		if err := s.fillProfiles(ctx, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *threadStore) load(ctx context.Context, threadID int64) (*Thread, error) {
	var t Thread
	var lo, hi int64
	err := s.QueryRowContext(ctx, getThreadSQL, threadID).Scan(&t.ID, &lo, &hi, &t.CreateTime, &t.UpdateTime)
	if err == sql.ErrNoRows {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Participants = [2]User{{ID: lo}, {ID: hi}}

	rows, err := s.QueryContext(ctx, getMsgsSQL, threadID)
	if err != nil {
		glog.Errorf("get messages query err: %v", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		t.Messages = append(t.Messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.fillProfiles(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *threadStore) lastMessage(ctx context.Context, threadID int64) (*Message, error) {
	rows, err := s.QueryContext(ctx, lastMsgSQL, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanMessage(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var body, attPath, attKind string
	var attSize int64
	if err := row.Scan(&m.Seq, &m.SenderID, &body, &attPath, &attKind, &attSize, &m.CreateTime); err != nil {
		glog.Errorf("scan message err: %v", err)
		return nil, err
	}

	var att *Attachment
	if attPath != "" {
		att = &Attachment{Path: attPath, Kind: Kind(attKind), Size: attSize}
	}
	content, err := NewContent(body, att)
	if err != nil {
		// An empty row cannot be appended; treat it as corruption.
		glog.Errorf("message with empty content in storage: %v", err)
		return nil, err
	}
	m.Content = content
	return &m, nil
}

// fillProfiles resolves the minimal profile projection for both parties.
// The users table belongs to the account system; rows may be missing for
// deactivated accounts, in which case only the id is populated.
func (s *threadStore) fillProfiles(ctx context.Context, t *Thread) error {
	rows, err := s.QueryContext(ctx, getUsersSQL, t.Participants[0].ID, t.Participants[1].ID)
	if err != nil {
		glog.Errorf("get user profiles query err: %v", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var u User
		var avatar sql.NullString
		if err := rows.Scan(&u.ID, &u.DisplayName, &avatar); err != nil {
			return err
		}
		u.Avatar = avatar.String
		for i := range t.Participants {
			if t.Participants[i].ID == u.ID {
				t.Participants[i] = u
			}
		}
	}
	return rows.Err()
}
