package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Kind_String_And_Parse(t *testing.T) {
	req := require.New(t)

	for _, kind := range []Kind{KindText, KindFile, KindImage} {
		parsed, err := ParseKind(kind.String())
		req.NoError(err)
		req.Equal(kind, parsed)
	}

	_, err := ParseKind("carrier-pigeon")
	req.Error(err)
}

func Test_ValidateNickname(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateNickname("alice", 32))
	req.NoError(ValidateNickname("René", 32))

	req.Error(ValidateNickname("", 32))
	req.Error(ValidateNickname("   ", 32))
	req.Error(ValidateNickname(strings.Repeat("a", 33), 32))
	req.Error(ValidateNickname("tab\there", 32))
	req.Error(ValidateNickname("line\nbreak", 32))
	req.Error(ValidateNickname(string([]byte{0xff, 0xfe}), 32))
}

func Test_ListFilter_Matches(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{Sender: "alice", Kind: KindText, Text: "hi", At: at}

	req.True(ListFilter{}.Matches(msg))
	req.True(ListFilter{Sender: "alice"}.Matches(msg))
	req.False(ListFilter{Sender: "bob"}.Matches(msg))
	req.True(ListFilter{From: at.Add(-time.Hour), Until: at.Add(time.Hour)}.Matches(msg))
	req.False(ListFilter{From: at.Add(time.Minute)}.Matches(msg))
	req.False(ListFilter{Until: at.Add(-time.Minute)}.Matches(msg))
}
