package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Default timeouts applied when Config leaves them zero.
const (
	defaultConnectTimeout = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultReadBufferSize = 256
)

// Transport is a single stream connection as seen by the session.
type Transport interface {
	// Connect opens the stream to address ("host:port").
	Connect(ctx context.Context, address string) error

	// Send writes bytes from p. It may write fewer than len(p);
	// the caller retries with the remainder.
	Send(p []byte) (int, error)

	// Receive copies already-arrived bytes into p without blocking.
	// It returns 0 when nothing is buffered. After PollReadable reported
	// ready, a 0 means the peer closed the stream.
	Receive(p []byte) (int, error)

	// PollReadable waits up to timeout for bytes (or a close) to arrive.
	PollReadable(timeout time.Duration) (bool, error)

	// Close releases the stream. Calling it more than once is safe.
	Close() error
}

// Config holds TCP transport settings.
type Config struct {
	// ConnectTimeout bounds the dial. Default: 5s.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each Send. Default: 5s.
	WriteTimeout time.Duration

	// ReadBufferSize is the staging area filled by PollReadable. It
	// should match the session's inbound buffer. Default: 256.
	ReadBufferSize int
}

// TCP implements Transport over a plain TCP connection.
//
// Arrived bytes are staged in a bufio.Reader: PollReadable blocks in Peek
// under a read deadline, and Receive only copies what Peek already pulled
// in, so it never touches the socket.
//
// TCP is not safe for concurrent use.
type TCP struct {
	cfg  Config
	conn net.Conn
	r    *bufio.Reader
	eof  bool
}

// NewTCP creates an unconnected TCP transport.
func NewTCP(cfg Config) *TCP {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	return &TCP{cfg: cfg}
}

// Connect dials address. An existing connection is closed first.
func (t *TCP) Connect(ctx context.Context, address string) error {
	_ = t.Close()

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectFailed, address, err)
	}

	t.conn = conn
	t.r = bufio.NewReaderSize(conn, t.cfg.ReadBufferSize)
	t.eof = false
	return nil
}

// Send writes p under the configured write deadline.
func (t *TCP) Send(p []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return 0, fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	n, err := t.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return n, nil
}

// Receive copies staged bytes into p. It never reads the socket.
func (t *TCP) Receive(p []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	buffered := t.r.Buffered()
	if buffered == 0 || len(p) == 0 {
		return 0, nil
	}
	if buffered < len(p) {
		p = p[:buffered]
	}
	n, err := t.r.Read(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrReceiveFailed, err)
	}
	return n, nil
}

// PollReadable reports whether bytes are staged or the peer has closed,
// waiting at most timeout for either.
func (t *TCP) PollReadable(timeout time.Duration) (bool, error) {
	if t.conn == nil {
		return false, ErrNotConnected
	}
	if t.eof || t.r.Buffered() > 0 {
		return true, nil
	}
	if timeout < 0 {
		timeout = 0
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, fmt.Errorf("%w: set deadline: %w", ErrReceiveFailed, err)
	}

	_, err := t.r.Peek(1)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, io.EOF):
		t.eof = true
		return true, nil
	case isTimeout(err):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrReceiveFailed, err)
	}
}

// Close closes the connection if one is open.
func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.r = nil
	t.eof = false
	if err != nil {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}

// RemoteAddr returns the peer address, or "" when not connected.
func (t *TCP) RemoteAddr() string {
	if t.conn == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
