// Package wire implements the framed byte protocol spoken between the
// relay and its clients. Every frame is length-delimited:
//
//	[kind:1][length:4 big-endian][payload:length]
//
// File and Image payloads nest their own lengths:
//
//	[filename_len:2 big-endian][filename][file_len:4 big-endian][file]
//
// Length-delimiting (rather than sentinel scanning) is what lets file
// and image payloads carry arbitrary bytes, including the codec's own
// tag values.
package wire

// Kind is the one-byte tag that opens every frame.
type Kind byte

const (
	KindJoin  Kind = 0
	KindText  Kind = 1
	KindFile  Kind = 2
	KindImage Kind = 3
	KindQuit  Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindImage:
		return "image"
	case KindQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Frame is the closed set of protocol messages. The unexported method
// seals the set so the decode/handle type switches stay exhaustive.
type Frame interface {
	Kind() Kind
	sealed()
}

// JoinFrame announces the nickname. It must be the first frame on a
// connection and must never appear again.
type JoinFrame struct {
	Nickname string
}

// TextFrame carries one UTF-8 chat message.
type TextFrame struct {
	Text string
}

// FileFrame carries a named blob.
type FileFrame struct {
	Filename string
	Data     []byte
}

// ImageFrame has the same shape as FileFrame; the distinct tag is a
// rendering hint for clients.
type ImageFrame struct {
	Filename string
	Data     []byte
}

// QuitFrame is a graceful close notice. Its payload is empty.
type QuitFrame struct{}

func (JoinFrame) Kind() Kind  { return KindJoin }
func (TextFrame) Kind() Kind  { return KindText }
func (FileFrame) Kind() Kind  { return KindFile }
func (ImageFrame) Kind() Kind { return KindImage }
func (QuitFrame) Kind() Kind  { return KindQuit }

func (JoinFrame) sealed()  {}
func (TextFrame) sealed()  {}
func (FileFrame) sealed()  {}
func (ImageFrame) sealed() {}
func (QuitFrame) sealed()  {}
