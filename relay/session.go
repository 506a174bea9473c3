// Package relay contains the connection/broadcast core: one Session per
// accepted connection, the Hub that serializes persistence and fan-out,
// and the Acceptor that feeds it.
package relay

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
	relayerrors "chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/wire"
)

// SessionState tracks a session's lifecycle for the debug view.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config bounds one session's resource usage.
type Config struct {
	MaxPayload       uint32
	QueueCapacity    int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxNicknameLen   int
}

func (c Config) withDefaults() Config {
	if c.MaxPayload == 0 {
		c.MaxPayload = wire.DefaultMaxPayload
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 256
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.MaxNicknameLen <= 0 {
		c.MaxNicknameLen = 32
	}
	return c
}

// Session owns one client connection end to end: handshake, a reader
// loop that submits decoded messages to the hub, and a writer loop that
// drains the outbound queue back onto the socket. The nickname is set
// once during the handshake and immutable afterwards.
type Session struct {
	id    uuid.UUID
	conn  net.Conn
	hub   *Hub
	cfg   Config
	codec wire.Codec
	log   *slog.Logger
	stats *observability.Stats

	nickname string
	out      chan domain.Message
	done     chan struct{}
	state    atomic.Int32
	stopOnce sync.Once
}

func NewSession(conn net.Conn, hub *Hub, cfg Config, log *slog.Logger, stats *observability.Stats) *Session {
	cfg = cfg.withDefaults()
	id := uuid.New()
	return &Session{
		id:    id,
		conn:  conn,
		hub:   hub,
		cfg:   cfg,
		codec: wire.Codec{MaxPayload: cfg.MaxPayload},
		log:   log.With("session_id", id.String(), "remote_addr", conn.RemoteAddr().String()),
		stats: stats,
		out:   make(chan domain.Message, cfg.QueueCapacity),
		done:  make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID         { return s.id }
func (s *Session) Nickname() string      { return s.nickname }
func (s *Session) State() SessionState   { return SessionState(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }

// Run drives the session until the peer disconnects, a fatal protocol
// error occurs, or ctx is canceled. It always returns with the session
// deregistered and the socket closed.
func (s *Session) Run(ctx context.Context) {
	s.stats.SessionOpened()
	defer s.stats.SessionClosed()
	defer s.shutdown()

	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	// One buffered reader for the whole connection: bytes read ahead
	// during the handshake must not be lost to the read loop.
	reader := bufio.NewReader(meteredReader{conn: s.conn, stats: s.stats})

	nickname, err := s.handshake(reader)
	if err != nil {
		s.stats.HandshakeFailureSeen()
		s.log.Warn("handshake failed, closing connection", "error", err)
		return
	}
	s.nickname = nickname
	s.log = s.log.With("nickname", nickname)
	s.state.Store(int32(StateActive))
	s.hub.Register(s)
	s.log.Info("session active")

	go s.writeLoop()
	s.readLoop(reader)
}

// handshake reads exactly one Join frame within the configured timeout
// and validates the announced nickname. On any failure the session is
// never registered, so nothing leaks into the hub.
func (s *Session) handshake(reader io.Reader) (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return "", fmt.Errorf("%w: %v", relayerrors.ErrHandshakeFailed, err)
	}
	frame, err := s.codec.ReadFrame(reader)
	if err != nil {
		return "", fmt.Errorf("%w: reading join frame: %v", relayerrors.ErrHandshakeFailed, err)
	}
	join, ok := frame.(wire.JoinFrame)
	if !ok {
		return "", fmt.Errorf("%w: first frame is %s, want join", relayerrors.ErrHandshakeFailed, frame.Kind())
	}
	if err := domain.ValidateNickname(join.Nickname, s.cfg.MaxNicknameLen); err != nil {
		return "", fmt.Errorf("%w: %v", relayerrors.ErrNicknameInvalid, err)
	}
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return "", fmt.Errorf("%w: %v", relayerrors.ErrHandshakeFailed, err)
	}
	return join.Nickname, nil
}

func (s *Session) readLoop(reader io.Reader) {
	for {
		frame, err := s.codec.ReadFrame(reader)
		if err != nil {
			s.logReadEnd(err)
			return
		}

		switch f := frame.(type) {
		case wire.TextFrame:
			s.submit(domain.Message{Kind: domain.KindText, Text: f.Text})
		case wire.FileFrame:
			s.submit(domain.Message{Kind: domain.KindFile, Filename: f.Filename, Binary: f.Data})
		case wire.ImageFrame:
			s.submit(domain.Message{Kind: domain.KindImage, Filename: f.Filename, Binary: f.Data})
		case wire.QuitFrame:
			s.log.Info("client quit")
			return
		case wire.JoinFrame:
			s.stats.ProtocolErrorSeen()
			s.log.Warn("join frame after handshake, closing session")
			return
		}
	}
}

// submit hands a decoded message to the hub in stream order. A store
// failure is surfaced here: the wire protocol has no error frame, so
// the error is logged against this session and the message is neither
// delivered nor retried. Other sessions are untouched and this one
// keeps running.
func (s *Session) submit(message domain.Message) {
	message.Sender = s.nickname
	message.At = time.Now().UTC()
	if _, err := s.hub.Submit(s.id, message); err != nil {
		s.log.Error("message dropped", "kind", message.Kind.String(), "error", err)
	}
}

func (s *Session) logReadEnd(err error) {
	switch {
	case err == io.EOF:
		s.log.Info("client hung up")
	case s.closingOrClosed() || stderrors.Is(err, net.ErrClosed):
		// Our own shutdown unblocked the read; nothing to report.
	case stderrors.Is(err, relayerrors.ErrIncompleteFrame):
		s.log.Warn("connection dropped mid-frame", "error", err)
	case stderrors.Is(err, relayerrors.ErrMalformedFrame), stderrors.Is(err, relayerrors.ErrFrameTooLarge):
		s.stats.ProtocolErrorSeen()
		s.log.Warn("protocol violation, closing session", "error", err)
	default:
		s.log.Warn("read failed", "error", err)
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case message := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.log.Warn("write deadline failed", "error", err)
				s.shutdown()
				return
			}
			n, err := s.codec.WriteFrame(s.conn, frameFor(message))
			s.stats.AddBytesOut(uint64(n))
			if err != nil {
				if !s.closingOrClosed() {
					s.log.Warn("write failed, closing session", "error", err)
				}
				s.shutdown()
				return
			}
		}
	}
}

// enqueue appends a message to the outbound queue without blocking.
// The hub kicks sessions whose queue is full, so a slow consumer never
// stalls fan-out to anyone else.
func (s *Session) enqueue(message domain.Message) bool {
	select {
	case s.out <- message:
		return true
	default:
		return false
	}
}

func (s *Session) queueDepth() int { return len(s.out) }

// shutdown tears the session down exactly once. Deregistration happens
// first, so by the time teardown completes no broadcast can target this
// session anymore.
func (s *Session) shutdown() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		s.hub.Deregister(s.id)
		close(s.done)
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
	})
}

func (s *Session) closingOrClosed() bool {
	return s.State() == StateClosing || s.State() == StateClosed
}

func frameFor(message domain.Message) wire.Frame {
	switch message.Kind {
	case domain.KindFile:
		return wire.FileFrame{Filename: message.Filename, Data: message.Binary}
	case domain.KindImage:
		return wire.ImageFrame{Filename: message.Filename, Data: message.Binary}
	default:
		return wire.TextFrame{Text: message.Text}
	}
}

// meteredReader counts inbound bytes as they leave the socket.
type meteredReader struct {
	conn  net.Conn
	stats *observability.Stats
}

func (m meteredReader) Read(p []byte) (int, error) {
	n, err := m.conn.Read(p)
	if n > 0 {
		m.stats.AddBytesIn(uint64(n))
	}
	return n, err
}
