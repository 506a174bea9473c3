package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

const (
	messagePrefix = "msg:"
	sequenceKey   = "seq:msg"
	// Sequence ids are leased in batches; a crash may skip the rest of
	// a batch but never reuses or reorders an id.
	sequenceBandwidth = 64
)

type IMessageRepository interface {
	Append(message domain.Message) (int64, error)
	List(filter domain.ListFilter) ([]domain.Message, error)
	Delete(id int64) (bool, error)
}

// MessageRepository persists messages in BadgerDB.
// The key is formatted as "msg:{id_padded}" with 20-digit zero padding,
// so a prefix scan returns messages in id (and therefore submission)
// order lexicographically.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	// The sequence is acquired lazily so a read-only open (inspect
	// tooling) never attempts a write.
	seqOnce sync.Once
	seq     *badger.Sequence
	seqErr  error
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// storedMessage is the on-disk shape. Binary payloads ride along as
// base64 inside the JSON value, next to their metadata, so the admin
// view can inspect or discard them independent of live delivery.
type storedMessage struct {
	ID       int64     `json:"id"`
	Sender   string    `json:"sender"`
	Kind     string    `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Binary   []byte    `json:"binary,omitempty"`
	At       time.Time `json:"at"`
}

func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, id))
}

func (r *MessageRepository) sequence() (*badger.Sequence, error) {
	r.seqOnce.Do(func() {
		r.seq, r.seqErr = r.db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	})
	return r.seq, r.seqErr
}

// Close releases the id sequence lease. The caller still owns the DB.
func (r *MessageRepository) Close() error {
	if r.seq == nil {
		return nil
	}
	return r.seq.Release()
}

// Append records a message under a fresh id and returns that id.
// The write is a single-key transaction: either the full record, binary
// payload included, becomes durable, or nothing does. An id drawn for a
// failed write is simply skipped.
func (r *MessageRepository) Append(message domain.Message) (int64, error) {
	seq, err := r.sequence()
	if err != nil {
		return 0, fmt.Errorf("acquiring id sequence: %w", err)
	}
	next, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("assigning message id: %w", err)
	}
	id := int64(next) + 1 // ids start at 1

	value, err := json.Marshal(fromDomain(id, message))
	if err != nil {
		return 0, fmt.Errorf("encoding message %d: %w", id, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(id), value)
	})
	if err != nil {
		return 0, fmt.Errorf("writing message %d: %w", id, err)
	}
	return id, nil
}

// List returns messages in id order. SinceID is exclusive: the scan
// seeks directly to the first key after it, the remaining filter fields
// are applied per record, and Limit caps the result.
func (r *MessageRepository) List(filter domain.ListFilter) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(messagePrefix)
		for it.Seek(messageKey(filter.SinceID + 1)); it.ValidForPrefix(prefix); it.Next() {
			if filter.Limit > 0 && len(messages) == filter.Limit {
				r.log.Debug("message list limit reached", "limit", filter.Limit)
				return nil
			}
			err := it.Item().Value(func(value []byte) error {
				message, err := decodeStored(value)
				if err != nil {
					return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
				}
				if filter.Matches(message) {
					messages = append(messages, message)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// Delete removes one message. It reports false, nil when the id was
// never stored or already deleted, so admin retries stay harmless.
func (r *MessageRepository) Delete(id int64) (bool, error) {
	deleted := false
	err := r.db.Update(func(txn *badger.Txn) error {
		key := messageKey(id)
		if _, err := txn.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func fromDomain(id int64, message domain.Message) storedMessage {
	return storedMessage{
		ID:       id,
		Sender:   message.Sender,
		Kind:     message.Kind.String(),
		Text:     message.Text,
		Filename: message.Filename,
		Binary:   message.Binary,
		At:       message.At,
	}
}

func decodeStored(value []byte) (domain.Message, error) {
	var stored storedMessage
	if err := json.Unmarshal(value, &stored); err != nil {
		return domain.Message{}, err
	}
	kind, err := domain.ParseKind(stored.Kind)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:       stored.ID,
		Sender:   stored.Sender,
		Kind:     kind,
		Text:     stored.Text,
		Filename: stored.Filename,
		Binary:   stored.Binary,
		At:       stored.At,
	}, nil
}
