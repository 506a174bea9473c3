package relay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	relayerrors "chat-relay/errors"
	"chat-relay/observability"
)

// Hub is the only component that mutates the session registry and the
// only path by which a message reaches persistence and other sessions.
// One mutex guards the registry and serializes Submit, so the
// persist-then-fanout pair of one message never interleaves with
// another's.
type Hub struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	store contract.IMessageStore
	stats *observability.Stats
	log   *slog.Logger
}

func NewHub(store contract.IMessageStore, stats *observability.Stats, log *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]*Session),
		store:    store,
		stats:    stats,
		log:      log,
	}
}

// Register adds a session to the live set. Called once per session,
// after a successful handshake.
func (h *Hub) Register(session *Session) {
	h.mu.Lock()
	h.sessions[session.id] = session
	count := len(h.sessions)
	h.mu.Unlock()
	h.log.Info("session registered",
		"session_id", session.id.String(), "nickname", session.nickname, "sessions", count)
}

// Deregister removes a session. It is idempotent: the reader and writer
// of a failing session may both trigger it, and the overflow kick path
// removes entries before the session's own teardown runs.
func (h *Hub) Deregister(id uuid.UUID) {
	h.mu.Lock()
	session, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	count := len(h.sessions)
	h.mu.Unlock()
	if ok {
		h.log.Info("session deregistered",
			"session_id", id.String(), "nickname", session.nickname, "sessions", count)
	}
}

// Submit persists the message and, only if persistence succeeds, fans
// it out to every registered session except the sender. It returns the
// message with its store-assigned id, or the store error when nothing
// was delivered.
//
// Fan-out is a non-blocking enqueue onto each session's own queue:
// Submit blocks for the duration of the persistence write, never on a
// slow receiver. A session whose queue is full is removed from the
// registry on the spot and disconnected after the lock is released.
func (h *Hub) Submit(senderID uuid.UUID, message domain.Message) (domain.Message, error) {
	h.mu.Lock()

	id, err := h.store.Append(message)
	if err != nil {
		h.mu.Unlock()
		h.stats.StoreErrorSeen()
		return message, fmt.Errorf("persisting %s message from %q: %w",
			message.Kind, message.Sender, err)
	}
	message.ID = id

	var kicked []*Session
	for sessionID, session := range h.sessions {
		if sessionID == senderID {
			continue // no self-echo
		}
		if !session.enqueue(message) {
			delete(h.sessions, sessionID)
			kicked = append(kicked, session)
		}
	}
	h.mu.Unlock()

	h.stats.MessageRelayed()
	for _, session := range kicked {
		h.stats.OverflowKickSeen()
		h.log.Warn("session kicked",
			"error", relayerrors.ErrQueueOverflow,
			"session_id", session.id.String(), "nickname", session.nickname,
			"capacity", cap(session.out))
		session.shutdown()
	}
	return message, nil
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// SessionInfo is the debug-endpoint projection of one live session.
type SessionInfo struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname"`
	State      string `json:"state"`
	QueueDepth int    `json:"queue_depth"`
	RemoteAddr string `json:"remote_addr"`
}

// Snapshot lists live sessions for the debug server.
func (h *Hub) Snapshot() []SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]SessionInfo, 0, len(h.sessions))
	for _, session := range h.sessions {
		infos = append(infos, SessionInfo{
			ID:         session.id.String(),
			Nickname:   session.nickname,
			State:      session.State().String(),
			QueueDepth: session.queueDepth(),
			RemoteAddr: session.conn.RemoteAddr().String(),
		})
	}
	return infos
}

// CloseAll disconnects every live session. Used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mu.Unlock()

	for _, session := range sessions {
		session.shutdown()
	}
}
