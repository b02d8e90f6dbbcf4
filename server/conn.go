package server

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"Renju/protocol"
)

const writeTimeout = 10 * time.Second

// Conn wraps one client TCP connection. Responses and pushes interleave
// from different goroutines, so every write serializes under mu and each
// frame flushes as one line.
type Conn struct {
	mu  sync.Mutex
	raw net.Conn
	w   *bufio.Writer
}

func newConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, w: bufio.NewWriter(raw)}
}

// Push sends a server-initiated frame.
func (c *Conn) Push(p protocol.Push) error {
	return c.writeJSON(p)
}

// Respond sends the direct answer to a request.
func (c *Conn) Respond(r protocol.Response) error {
	return c.writeJSON(r)
}

func (c *Conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.raw.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the peer address for logging.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}
