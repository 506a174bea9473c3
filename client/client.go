// Package client implements the relay's wire protocol from the
// connecting side: it announces a nickname, then exchanges text, file,
// and image frames with the server.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"chat-relay/wire"
)

// Conn is one authenticated connection to a relay server. Writes are
// serialized internally, so Send methods may be called from a goroutine
// other than the one calling Receive.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	codec  wire.Codec

	mu sync.Mutex
}

// DialContext connects to the relay at addr and performs the join
// handshake with the given nickname. The context bounds dialing only;
// the returned connection outlives it.
func DialContext(ctx context.Context, addr, nickname string) (*Conn, error) {
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	c := &Conn{
		conn:   netConn,
		reader: bufio.NewReader(netConn),
	}
	if err := c.send(wire.JoinFrame{Nickname: nickname}); err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("joining as %q: %w", nickname, err)
	}
	return c, nil
}

func (c *Conn) SendText(text string) error {
	return c.send(wire.TextFrame{Text: text})
}

func (c *Conn) SendFile(filename string, data []byte) error {
	return c.send(wire.FileFrame{Filename: filename, Data: data})
}

func (c *Conn) SendImage(filename string, data []byte) error {
	return c.send(wire.ImageFrame{Filename: filename, Data: data})
}

// Quit announces an orderly departure and closes the connection.
func (c *Conn) Quit() error {
	if err := c.send(wire.QuitFrame{}); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// Close tears the connection down without a quit frame. The server
// treats it as a hang-up.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Receive blocks until the next relayed frame arrives. It returns
// io.EOF once the server side has gone away.
func (c *Conn) Receive() (wire.Frame, error) {
	return c.codec.ReadFrame(c.reader)
}

func (c *Conn) send(frame wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.codec.WriteFrame(c.conn, frame)
	return err
}
