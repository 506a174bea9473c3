package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func openTestRepository(t *testing.T) *MessageRepository {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)

	repository := NewMessageRepository(db, slog.Default())
	t.Cleanup(func() {
		_ = repository.Close()
		_ = db.Close()
	})
	return repository
}

func Test_Append_Assigns_Increasing_Ids(t *testing.T) {
	req := require.New(t)
	repository := openTestRepository(t)
	at := time.Now().UTC()

	var previous int64
	for _, sender := range []string{"alice", "bob", "clara"} {
		id, err := repository.Append(domain.Message{
			Sender: sender,
			Kind:   domain.KindText,
			Text:   "this message will self destruct in 5 seconds",
			At:     at,
		})
		req.NoError(err)
		req.Greater(id, previous)
		previous = id
	}
}

func Test_Append_And_List_Preserve_Order_And_Content(t *testing.T) {
	req := require.New(t)
	repository := openTestRepository(t)
	at := time.Now().UTC().Truncate(time.Millisecond)

	sent := []domain.Message{
		{Sender: "alice", Kind: domain.KindText, Text: "first", At: at},
		{Sender: "alice", Kind: domain.KindText, Text: "second", At: at.Add(time.Second)},
		{Sender: "bob", Kind: domain.KindText, Text: "third", At: at.Add(2 * time.Second)},
	}
	for i := range sent {
		id, err := repository.Append(sent[i])
		req.NoError(err)
		sent[i].ID = id
	}

	fetched, err := repository.List(domain.ListFilter{})
	req.NoError(err)
	req.Equal(sent, fetched)
}

func Test_Append_File_Message_Keeps_Binary_Payload(t *testing.T) {
	req := require.New(t)
	repository := openTestRepository(t)

	id, err := repository.Append(domain.Message{
		Sender:   "alice",
		Kind:     domain.KindFile,
		Filename: "a.txt",
		Binary:   []byte("0123456789"),
		At:       time.Now().UTC(),
	})
	req.NoError(err)

	fetched, err := repository.List(domain.ListFilter{SinceID: id - 1})
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal(domain.KindFile, fetched[0].Kind)
	req.Equal("a.txt", fetched[0].Filename)
	req.Len(fetched[0].Binary, 10)
}

func Test_List_Filters(t *testing.T) {
	req := require.New(t)
	repository := openTestRepository(t)
	at := time.Now().UTC().Truncate(time.Millisecond)

	var ids []int64
	for i, sender := range []string{"alice", "bob", "alice", "bob"} {
		id, err := repository.Append(domain.Message{
			Sender: sender,
			Kind:   domain.KindText,
			Text:   "hello",
			At:     at.Add(time.Duration(i) * time.Minute),
		})
		req.NoError(err)
		ids = append(ids, id)
	}

	bySender, err := repository.List(domain.ListFilter{Sender: "alice"})
	req.NoError(err)
	req.Len(bySender, 2)

	sinceSecond, err := repository.List(domain.ListFilter{SinceID: ids[1]})
	req.NoError(err)
	req.Len(sinceSecond, 2)
	req.Equal(ids[2], sinceSecond[0].ID)

	limited, err := repository.List(domain.ListFilter{Limit: 3})
	req.NoError(err)
	req.Len(limited, 3)

	inRange, err := repository.List(domain.ListFilter{
		From:  at.Add(30 * time.Second),
		Until: at.Add(150 * time.Second),
	})
	req.NoError(err)
	req.Len(inRange, 2)
}

func Test_Delete_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := openTestRepository(t)

	id, err := repository.Append(domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "ephemeral", At: time.Now().UTC(),
	})
	req.NoError(err)

	deleted, err := repository.Delete(id)
	req.NoError(err)
	req.True(deleted)

	deleted, err = repository.Delete(id)
	req.NoError(err)
	req.False(deleted)

	remaining, err := repository.List(domain.ListFilter{})
	req.NoError(err)
	req.Empty(remaining)
}
