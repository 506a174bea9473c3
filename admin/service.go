package admin

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
)

const previewMaxRunes = 80

// MessageView is the operator-facing projection of a stored message.
// Binary payloads are summarized, never returned in full.
type MessageView struct {
	ID      int64     `json:"id"`
	Sender  string    `json:"sender"`
	Kind    string    `json:"kind"`
	Preview string    `json:"preview"`
	At      time.Time `json:"at"`
}

// Service exposes the stored history to operators: listing with
// filters and permanent deletion. Deleting a message removes it from
// the durable log only; copies already delivered to clients are gone.
type Service struct {
	store contract.IMessageStore
	log   *slog.Logger
}

func NewService(store contract.IMessageStore, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) ListMessages(filter domain.ListFilter) ([]MessageView, error) {
	messages, err := s.store.List(filter)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return lo.Map(messages, func(m domain.Message, _ int) MessageView {
		return MessageView{
			ID:      m.ID,
			Sender:  m.Sender,
			Kind:    m.Kind.String(),
			Preview: preview(m),
			At:      m.At,
		}
	}), nil
}

func (s *Service) DeleteMessage(id int64) (bool, error) {
	deleted, err := s.store.Delete(id)
	if err != nil {
		return false, fmt.Errorf("deleting message %d: %w", id, err)
	}
	if deleted {
		s.log.Info("message deleted", "id", id)
	}
	return deleted, nil
}

func preview(m domain.Message) string {
	if m.Kind == domain.KindText {
		runes := []rune(m.Text)
		if len(runes) > previewMaxRunes {
			return string(runes[:previewMaxRunes]) + "…"
		}
		return m.Text
	}
	detected := mimetype.Detect(m.Binary)
	return fmt.Sprintf("%s (%d bytes, %s)", m.Filename, len(m.Binary), detected.String())
}
