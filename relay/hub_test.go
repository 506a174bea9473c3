package relay

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/observability"
)

// fakeStore is an in-memory IMessageStore. failWith makes the next
// Append calls fail without recording anything.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	appended []domain.Message
	failWith error
}

func (f *fakeStore) Append(message domain.Message) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.nextID++
	message.ID = f.nextID
	f.appended = append(f.appended, message)
	return f.nextID, nil
}

func (f *fakeStore) List(filter domain.ListFilter) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.appended {
		if m.ID > filter.SinceID && filter.Matches(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.appended {
		if m.ID == id {
			f.appended = append(f.appended[:i], f.appended[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) stored() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.appended...)
}

func (f *fakeStore) setFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func newTestHub(t *testing.T) (*Hub, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	stats := observability.NewStats(slog.Default())
	return NewHub(store, stats, slog.Default()), store
}

// registeredSession builds a Session over a net.Pipe and registers it
// without running its pumps, so tests can inspect the outbound queue
// directly.
func registeredSession(t *testing.T, hub *Hub, nickname string, capacity int) *Session {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	session := NewSession(server, hub, Config{QueueCapacity: capacity},
		slog.Default(), observability.NewStats(slog.Default()))
	session.nickname = nickname
	hub.Register(session)
	return session
}

func drain(s *Session) []domain.Message {
	var out []domain.Message
	for {
		select {
		case m := <-s.out:
			out = append(out, m)
		default:
			return out
		}
	}
}

func Test_Submit_Fans_Out_To_All_But_Sender(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	bob := registeredSession(t, hub, "bob", 8)

	sent, err := hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "hi", At: time.Now().UTC(),
	})
	req.NoError(err)
	req.Equal(int64(1), sent.ID)

	received := drain(bob)
	req.Len(received, 1)
	req.Equal("alice", received[0].Sender)
	req.Equal(domain.KindText, received[0].Kind)
	req.Equal("hi", received[0].Text)

	req.Empty(drain(alice), "sender must not receive its own message")
}

func Test_Submit_Persists_Before_Fanout(t *testing.T) {
	req := require.New(t)
	hub, store := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	bob := registeredSession(t, hub, "bob", 8)

	_, err := hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "durable first", At: time.Now().UTC(),
	})
	req.NoError(err)

	received := drain(bob)
	req.Len(received, 1)
	// The delivered copy already carries the store-assigned id: no
	// message is visible to another session before it exists durably.
	req.Equal(store.stored()[0].ID, received[0].ID)
	req.Positive(received[0].ID)
}

func Test_Submit_File_Message_Reaches_Store_And_Peers(t *testing.T) {
	req := require.New(t)
	hub, store := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	bob := registeredSession(t, hub, "bob", 8)

	_, err := hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindFile,
		Filename: "a.txt", Binary: []byte("0123456789"), At: time.Now().UTC(),
	})
	req.NoError(err)

	stored := store.stored()
	req.Len(stored, 1)
	req.Equal(domain.KindFile, stored[0].Kind)
	req.Equal("a.txt", stored[0].Filename)
	req.Len(stored[0].Binary, 10)

	received := drain(bob)
	req.Len(received, 1)
	req.Equal("a.txt", received[0].Filename)
	req.Len(received[0].Binary, 10)
}

func Test_Submit_Store_Failure_Means_No_Fanout(t *testing.T) {
	req := require.New(t)
	hub, store := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	bob := registeredSession(t, hub, "bob", 8)
	store.setFailure(fmt.Errorf("disk full"))

	_, err := hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "lost", At: time.Now().UTC(),
	})
	req.ErrorContains(err, "disk full")
	req.Empty(store.stored())
	req.Empty(drain(bob), "failed submit must not reach any queue")
	req.Empty(drain(alice))

	// The failure affects only that submit: once the store recovers,
	// traffic flows again.
	store.setFailure(nil)
	_, err = hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "back", At: time.Now().UTC(),
	})
	req.NoError(err)
	req.Len(drain(bob), 1)
}

func Test_Submit_Preserves_Per_Sender_Order(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	bob := registeredSession(t, hub, "bob", 8)

	for i := 0; i < 5; i++ {
		_, err := hub.Submit(alice.ID(), domain.Message{
			Sender: "alice", Kind: domain.KindText,
			Text: fmt.Sprintf("message %d", i), At: time.Now().UTC(),
		})
		req.NoError(err)
	}

	received := drain(bob)
	req.Len(received, 5)
	for i, m := range received {
		req.Equal(fmt.Sprintf("message %d", i), m.Text)
		if i > 0 {
			req.Greater(m.ID, received[i-1].ID)
		}
	}
}

func Test_Queue_Overflow_Kicks_Only_The_Slow_Session(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	slow := registeredSession(t, hub, "slow", 1)
	carol := registeredSession(t, hub, "carol", 8)

	// First message fits the slow session's queue of one.
	_, err := hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "first", At: time.Now().UTC(),
	})
	req.NoError(err)
	req.Equal(3, hub.Count())

	// The second overflows it: the slow session alone is disconnected.
	_, err = hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "second", At: time.Now().UTC(),
	})
	req.NoError(err)
	req.Equal(2, hub.Count())
	req.Equal(StateClosed, slow.State())

	select {
	case <-slow.Done():
	default:
		req.Fail("kicked session should be shut down")
	}

	// Unrelated sessions keep exchanging messages normally.
	_, err = hub.Submit(carol.ID(), domain.Message{
		Sender: "carol", Kind: domain.KindText, Text: "still here", At: time.Now().UTC(),
	})
	req.NoError(err)
	messages := drain(alice)
	req.Len(messages, 1)
	req.Equal("still here", messages[0].Text)
}

func Test_Deregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	bob := registeredSession(t, hub, "bob", 8)
	req.Equal(2, hub.Count())

	hub.Deregister(bob.ID())
	hub.Deregister(bob.ID())
	req.Equal(1, hub.Count())

	// A broadcast after the removal neither delivers to nor errors on
	// the deregistered session.
	_, err := hub.Submit(alice.ID(), domain.Message{
		Sender: "alice", Kind: domain.KindText, Text: "anyone?", At: time.Now().UTC(),
	})
	req.NoError(err)
	req.Empty(drain(bob))
}

func Test_CloseAll_Shuts_Down_Every_Session(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	alice := registeredSession(t, hub, "alice", 8)
	bob := registeredSession(t, hub, "bob", 8)

	hub.CloseAll()
	req.Equal(0, hub.Count())
	req.Equal(StateClosed, alice.State())
	req.Equal(StateClosed, bob.State())
}

func Test_Snapshot_Lists_Live_Sessions(t *testing.T) {
	req := require.New(t)
	hub, _ := newTestHub(t)
	registeredSession(t, hub, "alice", 8)
	registeredSession(t, hub, "bob", 8)

	infos := hub.Snapshot()
	req.Len(infos, 2)
	nicknames := map[string]bool{}
	for _, info := range infos {
		nicknames[info.Nickname] = true
		req.Equal(StateConnecting.String(), info.State)
	}
	req.True(nicknames["alice"] && nicknames["bob"])
}
