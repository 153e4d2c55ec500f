package command

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bobobo1618/ninesleep/internal/netutil"
)

var ErrNotConnected = errors.New("firmware not connected")

const (
	DefaultReadTimeout = 50 * time.Millisecond

	writeTimeout    = time.Second
	maxResponseWait = 2 * time.Second
	maxResponseSize = 1 << 20
)

// Channel owns the single connection to the firmware control socket.
// Install swaps the connection; Execute runs one command at a time on
// whichever connection is current.
type Channel struct {
	logger      *slog.Logger
	readTimeout time.Duration

	mu   sync.Mutex // guards conn
	conn net.Conn

	execMu sync.Mutex // held for one write and read cycle
}

// NewChannel returns an empty channel. readTimeout bounds each read of a
// response; zero selects DefaultReadTimeout.
func NewChannel(logger *slog.Logger, readTimeout time.Duration) *Channel {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Channel{logger: logger, readTimeout: readTimeout}
}

// Install makes conn the current firmware connection and closes the one
// it replaces. A command in flight on the old connection ends with
// whatever it had read so far.
func (c *Channel) Install(conn net.Conn) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Connected reports whether a firmware connection is installed.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close drops and closes the current connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Channel) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Execute sends cmd and returns everything the firmware wrote back until
// it went quiet for the read timeout or closed the connection. The only
// error is ErrNotConnected; I/O failures yield a short or empty response.
func (c *Channel) Execute(cmd Command) ([]byte, error) {
	if c.current() == nil {
		return nil, ErrNotConnected
	}

	c.execMu.Lock()
	defer c.execMu.Unlock()

	conn := c.current()
	if conn == nil {
		return nil, ErrNotConnected
	}

	logger := c.logger.With("code", int(cmd.Code))

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(cmd.Bytes()); err != nil {
		logger.Debug("command write failed", "error", err)
		if netutil.IsExpectedClose(err) {
			c.drop(conn)
		}
		return []byte{}, nil
	}

	resp := c.readResponse(conn, logger)
	logger.Debug("command executed", "response_bytes", len(resp))
	return resp, nil
}

func (c *Channel) readResponse(conn net.Conn, logger *slog.Logger) []byte {
	var (
		resp     bytes.Buffer
		buf      = make([]byte, 4096)
		deadline = time.Now().Add(maxResponseWait)
	)
	for resp.Len() < maxResponseSize {
		next := time.Now().Add(c.readTimeout)
		if next.After(deadline) {
			next = deadline
		}
		conn.SetReadDeadline(next)

		n, err := conn.Read(buf)
		resp.Write(buf[:n])
		if err != nil {
			if !netutil.IsTimeout(err) && !netutil.IsExpectedClose(err) {
				logger.Debug("command read failed", "error", err)
			}
			break
		}
	}
	return resp.Bytes()
}

// drop clears the slot if it still holds conn, so later callers see
// ErrNotConnected instead of writing into a dead socket.
func (c *Channel) drop(conn net.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}
