package chat

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dsn = "root:@tcp(127.0.0.1:3306)/chat?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci"

// openTestDB connects to the local test database and wipes the chat
// tables. Skipped when MySQL is not reachable so the rest of the package
// still runs everywhere.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		t.Skipf("mysql not available: %v", err)
	}

	for _, table := range []string{"thread_msgs", "threads", "users"} {
		_, err := db.Exec("DELETE FROM " + table)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUsers(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec("INSERT INTO users (id, display_name, avatar) VALUES (1, 'alice', 'a.png'), (2, 'bob', NULL)")
	require.NoError(t, err)
}

func TestResolveIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	s := NewThreadStore(db)
	ctx := context.Background()

	t1, err := s.Resolve(ctx, 1, 2)
	require.NoError(t, err)
	t2, err := s.Resolve(ctx, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, t1.ID, t2.ID)
	assert.Equal(t, "alice", t1.Participants[0].DisplayName)
	assert.Equal(t, "bob", t1.Participants[1].DisplayName)
	assert.Empty(t, t2.Messages)
}

func TestResolveSelf(t *testing.T) {
	db := openTestDB(t)
	s := NewThreadStore(db)

	_, err := s.Resolve(context.Background(), 5, 5)
	assert.True(t, IsValidation(err))
}

func TestResolveConcurrentPair(t *testing.T) {
	db := openTestDB(t)
	s := NewThreadStore(db)
	ctx := context.Background()

	const N = 20
	ids := make([]int64, N)

	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate argument order to hit both assignments.
			a, b := int64(10), int64(20)
			if i%2 == 1 {
				a, b = b, a
			}
			th, err := s.Resolve(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = th.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < N; i++ {
		assert.Equal(t, ids[0], ids[i], "concurrent resolution must collapse to one thread")
	}
}

func TestAppendAssignsDenseSeqs(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	s := NewThreadStore(db)
	ctx := context.Background()

	th, err := s.Resolve(ctx, 1, 2)
	require.NoError(t, err)

	const N = 50
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content, err := TextContent(fmt.Sprintf("msg %d", i))
			if !assert.NoError(t, err) {
				return
			}
			_, err = s.Append(ctx, th.ID, int64(1+i%2), content)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, th.ID, 1)
	require.NoError(t, err)
	require.Len(t, got.Messages, N)
	for i, m := range got.Messages {
		assert.Equal(t, int32(i+1), m.Seq)
		if i > 0 {
			assert.False(t, m.CreateTime.Before(got.Messages[i-1].CreateTime))
		}
	}
	assert.False(t, got.UpdateTime.Before(got.CreateTime))
}

func TestAppendChecksThreadAndSender(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	s := NewThreadStore(db)
	ctx := context.Background()

	content, err := TextContent("hi")
	require.NoError(t, err)

	_, err = s.Append(ctx, 424242, 1, content)
	assert.ErrorIs(t, err, ErrThreadNotFound)

	th, err := s.Resolve(ctx, 1, 2)
	require.NoError(t, err)

	_, err = s.Append(ctx, th.ID, 3, content)
	assert.ErrorIs(t, err, ErrNotParticipant)

	require.NoError(t, s.Authorize(ctx, th.ID, 1))
	assert.ErrorIs(t, s.Authorize(ctx, th.ID, 3), ErrNotParticipant)
	assert.ErrorIs(t, s.Authorize(ctx, 424242, 1), ErrThreadNotFound)
}

func TestAppendPersistsAttachment(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	s := NewThreadStore(db)
	ctx := context.Background()

	th, err := s.Resolve(ctx, 1, 2)
	require.NoError(t, err)

	att := Attachment{Path: "abc123_photo.jpg", Kind: KindImage, Size: 2 << 20}
	_, err = s.Append(ctx, th.ID, 2, AttachmentContent(att))
	require.NoError(t, err)

	got, err := s.Get(ctx, th.ID, 2)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)

	gotAtt := got.Messages[0].Content.Attachment()
	require.NotNil(t, gotAtt)
	assert.Equal(t, att, *gotAtt)
	assert.Equal(t, AttachmentOnly, got.Messages[0].Content.Kind())
}

func TestGetRejectsStranger(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	s := NewThreadStore(db)
	ctx := context.Background()

	th, err := s.Resolve(ctx, 1, 2)
	require.NoError(t, err)

	_, err = s.Get(ctx, th.ID, 3)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = s.Get(ctx, 424242, 1)
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestListForUserOrdersByUpdateTime(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	s := NewThreadStore(db)
	ctx := context.Background()

	t12, err := s.Resolve(ctx, 1, 2)
	require.NoError(t, err)
	t13, err := s.Resolve(ctx, 1, 3)
	require.NoError(t, err)

	content, err := TextContent("bump")
	require.NoError(t, err)
	_, err = s.Append(ctx, t12.ID, 1, content)
	require.NoError(t, err)

	threads, err := s.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	// The thread with the fresh message sorts first and carries only its
	// newest message.
	assert.Equal(t, t12.ID, threads[0].ID)
	require.Len(t, threads[0].Messages, 1)
	assert.Equal(t, "bump", threads[0].Messages[0].Content.Text())
	assert.Equal(t, t13.ID, threads[1].ID)
	assert.Empty(t, threads[1].Messages)
}
