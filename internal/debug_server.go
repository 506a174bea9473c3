package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chat-relay/admin"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/relay"
)

const shutdownGracePeriod = 5 * time.Second

// DebugServer exposes the operator surface over HTTP: health, runtime
// stats, live sessions, and the stored history. It runs as a worker
// next to the acceptor and shuts down gracefully with the context.
type DebugServer struct {
	addr  string
	admin *admin.Service
	hub   *relay.Hub
	stats *observability.Stats
	log   *slog.Logger
}

func NewDebugServer(addr string, adminService *admin.Service, hub *relay.Hub, stats *observability.Stats, log *slog.Logger) *DebugServer {
	return &DebugServer{addr: addr, admin: adminService, hub: hub, stats: stats, log: log}
}

func (d *DebugServer) Run(ctx context.Context) error {
	server := &http.Server{Addr: d.addr, Handler: d.handler()}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info("debug server listening", "addr", d.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			d.log.Warn("debug server shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("debug server: %w", err)
	}
}

func (d *DebugServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		d.writeJSON(w, http.StatusOK, d.stats.Snapshot())
	})

	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		d.writeJSON(w, http.StatusOK, d.hub.Snapshot())
	})

	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		views, err := d.admin.ListMessages(filter)
		if err != nil {
			d.log.Error("listing messages", "error", err)
			http.Error(w, "listing failed", http.StatusInternalServerError)
			return
		}
		if views == nil {
			views = []admin.MessageView{}
		}
		d.writeJSON(w, http.StatusOK, views)
	})

	mux.HandleFunc("DELETE /messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid message id", http.StatusBadRequest)
			return
		}
		deleted, err := d.admin.DeleteMessage(id)
		if err != nil {
			d.log.Error("deleting message", "id", id, "error", err)
			http.Error(w, "deletion failed", http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func (d *DebugServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		d.log.Warn("encoding response", "error", err)
	}
}

func filterFromQuery(r *http.Request) (domain.ListFilter, error) {
	var filter domain.ListFilter
	query := r.URL.Query()

	if raw := query.Get("since_id"); raw != "" {
		sinceID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid since_id %q", raw)
		}
		filter.SinceID = sinceID
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	filter.Sender = query.Get("sender")
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid from timestamp %q", raw)
		}
		filter.From = from
	}
	if raw := query.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid until timestamp %q", raw)
		}
		filter.Until = until
	}
	return filter, nil
}
