package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"chat-relay/errors"
)

// DefaultMaxPayload bounds a single frame payload when no explicit
// limit is configured.
const DefaultMaxPayload = 16 << 20

const headerSize = 5 // kind byte + uint32 payload length

// Codec encodes and decodes frames over a byte stream. The zero value
// is usable and applies DefaultMaxPayload. Codec is stateless and safe
// for concurrent use.
type Codec struct {
	// MaxPayload rejects frames whose declared payload length exceeds
	// it, before any payload byte is read. This keeps a single client
	// from exhausting server memory with one header.
	MaxPayload uint32
}

func (c Codec) limit() uint32 {
	if c.MaxPayload == 0 {
		return DefaultMaxPayload
	}
	return c.MaxPayload
}

// Encode serializes a frame. It is deterministic: the same frame always
// yields the same bytes. It fails only on frames that cannot be
// represented at all (filename over 64 KiB, payload over 4 GiB).
func (c Codec) Encode(f Frame) ([]byte, error) {
	payload, err := encodePayload(f)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerSize+len(payload))
	buf[0] = byte(f.Kind())
	binary.BigEndian.PutUint32(buf[1:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// WriteFrame encodes f and writes it to w. It returns the number of
// bytes written.
func (c Codec) WriteFrame(w io.Writer, f Frame) (int, error) {
	buf, err := c.Encode(f)
	if err != nil {
		return 0, err
	}
	return w.Write(buf)
}

// ReadFrame decodes the next frame from r.
//
//   - io.EOF means the stream ended cleanly on a frame boundary.
//   - errors.ErrIncompleteFrame means the stream ended mid-frame; the
//     caller may wait for more bytes on a non-terminated stream.
//   - errors.ErrFrameTooLarge and errors.ErrMalformedFrame are protocol
//     violations; the caller should close the connection.
func (c Codec) ReadFrame(r io.Reader) (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: truncated header", errors.ErrIncompleteFrame)
		}
		return nil, err
	}

	kind := Kind(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > c.limit() {
		return nil, fmt.Errorf("%w: %s frame declares %d bytes, limit is %d",
			errors.ErrFrameTooLarge, kind, length, c.limit())
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %s frame truncated after %d declared bytes",
				errors.ErrIncompleteFrame, kind, length)
		}
		return nil, err
	}

	return decodePayload(kind, payload)
}

func encodePayload(f Frame) ([]byte, error) {
	switch f := f.(type) {
	case JoinFrame:
		return []byte(f.Nickname), nil
	case TextFrame:
		return []byte(f.Text), nil
	case FileFrame:
		return encodeBlob(f.Filename, f.Data)
	case ImageFrame:
		return encodeBlob(f.Filename, f.Data)
	case QuitFrame:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unencodable frame %T", errors.ErrMalformedFrame, f)
	}
}

func encodeBlob(filename string, data []byte) ([]byte, error) {
	if len(filename) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: filename is %d bytes, limit is %d",
			errors.ErrMalformedFrame, len(filename), math.MaxUint16)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: file content is %d bytes", errors.ErrMalformedFrame, len(data))
	}
	buf := make([]byte, 2+len(filename)+4+len(data))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(filename)))
	copy(buf[2:], filename)
	binary.BigEndian.PutUint32(buf[2+len(filename):], uint32(len(data)))
	copy(buf[2+len(filename)+4:], data)
	return buf, nil
}

func decodePayload(kind Kind, payload []byte) (Frame, error) {
	switch kind {
	case KindJoin:
		nickname, err := decodeString(kind, payload)
		if err != nil {
			return nil, err
		}
		return JoinFrame{Nickname: nickname}, nil
	case KindText:
		text, err := decodeString(kind, payload)
		if err != nil {
			return nil, err
		}
		return TextFrame{Text: text}, nil
	case KindFile:
		filename, data, err := decodeBlob(kind, payload)
		if err != nil {
			return nil, err
		}
		return FileFrame{Filename: filename, Data: data}, nil
	case KindImage:
		filename, data, err := decodeBlob(kind, payload)
		if err != nil {
			return nil, err
		}
		return ImageFrame{Filename: filename, Data: data}, nil
	case KindQuit:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: quit frame carries %d payload bytes",
				errors.ErrMalformedFrame, len(payload))
		}
		return QuitFrame{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame kind 0x%02x", errors.ErrMalformedFrame, byte(kind))
	}
}

func decodeString(kind Kind, payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: %s frame payload is not valid UTF-8", errors.ErrMalformedFrame, kind)
	}
	return string(payload), nil
}

func decodeBlob(kind Kind, payload []byte) (string, []byte, error) {
	if len(payload) < 2 {
		return "", nil, fmt.Errorf("%w: %s frame too short for filename length", errors.ErrMalformedFrame, kind)
	}
	filenameLen := int(binary.BigEndian.Uint16(payload[:2]))
	if len(payload) < 2+filenameLen+4 {
		return "", nil, fmt.Errorf("%w: %s frame too short for declared filename", errors.ErrMalformedFrame, kind)
	}
	filename := payload[2 : 2+filenameLen]
	if !utf8.Valid(filename) {
		return "", nil, fmt.Errorf("%w: %s frame filename is not valid UTF-8", errors.ErrMalformedFrame, kind)
	}
	dataLen := binary.BigEndian.Uint32(payload[2+filenameLen : 2+filenameLen+4])
	data := payload[2+filenameLen+4:]
	if uint32(len(data)) != dataLen {
		return "", nil, fmt.Errorf("%w: %s frame declares %d content bytes, carries %d",
			errors.ErrMalformedFrame, kind, dataLen, len(data))
	}
	if len(data) == 0 {
		data = nil
	}
	return string(filename), data, nil
}
