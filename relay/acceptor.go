package relay

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"time"

	"chat-relay/observability"
)

// acceptRetryDelay keeps a persistent accept error from spinning hot.
const acceptRetryDelay = 100 * time.Millisecond

// Acceptor owns the accept loop. The listener is bound by the caller:
// failing to bind at startup is the one error that should abort the
// whole process, and keeping it out of Run makes that explicit.
type Acceptor struct {
	listener net.Listener
	hub      *Hub
	cfg      Config
	log      *slog.Logger
	stats    *observability.Stats
}

func NewAcceptor(listener net.Listener, hub *Hub, cfg Config, log *slog.Logger, stats *observability.Stats) *Acceptor {
	return &Acceptor{
		listener: listener,
		hub:      hub,
		cfg:      cfg.withDefaults(),
		log:      log,
		stats:    stats,
	}
}

// Run accepts connections until ctx is canceled, spawning one session
// goroutine per connection so no single session's lifecycle can stall
// acceptance of the next. Transient accept errors are logged and the
// loop continues.
func (a *Acceptor) Run(ctx context.Context) error {
	a.log.Info("accepting connections", "addr", a.listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				a.log.Info("listener closed, accept loop stopping")
				a.hub.CloseAll()
				return nil
			}
			a.log.Error("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		session := NewSession(conn, a.hub, a.cfg, a.log, a.stats)
		go session.Run(ctx)
	}
}
