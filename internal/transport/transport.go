// Package transport owns the stream socket to the fail2ban server.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"fail2ban-exporter/internal/protocol"
)

const (
	DefaultChunkSize = 4096
	DefaultTimeout   = 10 * time.Second

	// the end marker must show up within this many trailing bytes
	terminatorWindow = 32
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrPeerClosed   = errors.New("connection reset by peer")
)

// Dialer opens stream connections
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Transport holds at most one live connection to an endpoint
type Transport struct {
	mu sync.Mutex

	endpoint  Endpoint
	conn      net.Conn
	dialer    Dialer
	chunkSize int
	timeout   time.Duration
}

// New parses the endpoint URI. It does not dial.
func New(uri string, opts ...Option) (*Transport, error) {
	endpoint, err := ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		endpoint:  endpoint,
		chunkSize: DefaultChunkSize,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt.apply(t)
	}
	if t.dialer == nil {
		t.dialer = &net.Dialer{Timeout: t.timeout}
	}
	if t.chunkSize <= 0 {
		t.chunkSize = DefaultChunkSize
	}
	return t, nil
}

// Endpoint returns the parsed endpoint
func (t *Transport) Endpoint() Endpoint {
	return t.endpoint
}

// Connected reports whether a connection is currently held
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect dials the endpoint if no connection is held
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}
	return t.dialLocked(ctx)
}

// Reconnect drops the current connection and dials a new one
func (t *Transport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closeLocked()
	return t.dialLocked(ctx)
}

func (t *Transport) dialLocked(ctx context.Context) error {
	conn, err := t.dialer.DialContext(ctx, t.endpoint.Network, t.endpoint.Address)
	if err != nil {
		return &ConnectionError{Op: "dial", Endpoint: t.endpoint.String(), Err: err}
	}
	t.conn = conn
	return nil
}

// Read accumulates chunks until a complete frame has arrived
func (t *Transport) Read() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, t.connErr("read", ErrNotConnected)
	}
	t.setDeadline()

	chunk := make([]byte, t.chunkSize)
	var data []byte
	for !protocol.HasTerminator(data, terminatorWindow) {
		n, err := t.conn.Read(chunk)
		data = append(data, chunk[:n]...)
		if protocol.HasTerminator(data, terminatorWindow) {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrPeerClosed
			}
			return nil, t.connErr("read", err)
		}
		if n == 0 {
			return nil, t.connErr("read", ErrPeerClosed)
		}
	}
	return data, nil
}

// Write sends the whole buffer
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return t.connErr("write", ErrNotConnected)
	}
	t.setDeadline()

	for len(data) > 0 {
		n, err := t.conn.Write(data)
		if err != nil {
			return t.connErr("write", err)
		}
		data = data[n:]
	}
	return nil
}

// Close sends the close frame and releases the socket. Safe to call more
// than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	conn := t.conn
	t.conn = nil

	t.setDeadlineOn(conn)
	// best effort, the server may already be gone
	_, _ = conn.Write(protocol.CloseFrame)
	return conn.Close()
}

func (t *Transport) setDeadline() {
	t.setDeadlineOn(t.conn)
}

func (t *Transport) setDeadlineOn(conn net.Conn) {
	if t.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(t.timeout))
	}
}

func (t *Transport) connErr(op string, err error) error {
	return &ConnectionError{Op: op, Endpoint: t.endpoint.String(), Err: err}
}
