// Package domain contains core concepts of the relay.
// Messages are immutable records; validation rules live here.
// No network, storage, or UI logic should be added here.
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind discriminates message payloads. Image is distinguished from File
// for client-side rendering hints only; the relay treats both the same.
type Kind uint8

const (
	KindText Kind = iota
	KindFile
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String. Unknown names are an error
// so stored records cannot silently change meaning.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text":
		return KindText, nil
	case "file":
		return KindFile, nil
	case "image":
		return KindImage, nil
	default:
		return 0, fmt.Errorf("unknown message kind %q", s)
	}
}

// Message is one relayed item. ID is assigned by the store and is
// monotonically increasing; it is zero until the message is persisted.
// Sender holds a copy of the nickname, so a Message outlives the
// session that produced it.
type Message struct {
	ID       int64
	Sender   string
	Kind     Kind
	Text     string
	Filename string
	Binary   []byte
	At       time.Time
}

// ListFilter narrows store queries. Zero values mean "no constraint".
type ListFilter struct {
	SinceID int64
	From    time.Time
	Until   time.Time
	Sender  string
	Limit   int
}

// Matches reports whether m passes every constraint except SinceID and
// Limit, which the store applies through its key iteration.
func (f ListFilter) Matches(m Message) bool {
	if f.Sender != "" && m.Sender != f.Sender {
		return false
	}
	if !f.From.IsZero() && m.At.Before(f.From) {
		return false
	}
	if !f.Until.IsZero() && m.At.After(f.Until) {
		return false
	}
	return true
}

// ValidateNickname enforces the handshake rules: non-empty after
// trimming, valid UTF-8, at most max runes, no control characters.
func ValidateNickname(nickname string, max int) error {
	if strings.TrimSpace(nickname) == "" {
		return fmt.Errorf("nickname is empty")
	}
	if !utf8.ValidString(nickname) {
		return fmt.Errorf("nickname is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(nickname); n > max {
		return fmt.Errorf("nickname is %d runes, limit is %d", n, max)
	}
	for _, r := range nickname {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("nickname contains control character %q", r)
		}
	}
	return nil
}
