// Package client implements the fail2ban control socket commands used by
// the exporter.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fail2ban-exporter/internal/protocol"
	"fail2ban-exporter/internal/transport"

	"github.com/sirupsen/logrus"
)

// maxAttempts bounds a request to the first try plus one retry on a fresh
// connection
const maxAttempts = 2

// Client issues commands over a single control socket connection
type Client struct {
	mu sync.Mutex

	transport *transport.Transport
	codec     protocol.Codec
	log       logrus.FieldLogger

	transportOpts []transport.Option
}

// Option configures a Client
type Option func(*Client)

// WithCodec replaces the pickle codec
func WithCodec(codec protocol.Codec) Option {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithLogger sets the logger used for retry warnings
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithTransportOptions passes options to the underlying transport
func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *Client) {
		c.transportOpts = append(c.transportOpts, opts...)
	}
}

// New creates a client for the endpoint URI. The socket is opened on first use.
func New(uri string, opts ...Option) (*Client, error) {
	c := &Client{
		codec: protocol.NewPickleCodec(),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	t, err := transport.New(uri, c.transportOpts...)
	if err != nil {
		return nil, err
	}
	c.transport = t
	return c, nil
}

// Close releases the socket
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.Close()
}

// Do sends a command and returns the successful response payload
func (c *Client) Do(ctx context.Context, cmd protocol.Command) (any, error) {
	resp, err := c.roundTrip(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// roundTrip writes the command and reads the reply. A connection failure
// reconnects and retries the whole exchange once.
func (c *Client) roundTrip(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	frame, err := c.codec.Encode(cmd)
	if err != nil {
		return protocol.Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return protocol.Response{}, err
		}

		if attempt > 1 {
			c.log.WithFields(logrus.Fields{
				"endpoint": c.transport.Endpoint().String(),
				"attempt":  attempt,
			}).WithError(lastErr).Warn("Reconnecting to fail2ban")
			if err := c.transport.Reconnect(ctx); err != nil {
				lastErr = err
				continue
			}
		} else if !c.transport.Connected() {
			c.log.WithField("endpoint", c.transport.Endpoint().String()).Debug("Connecting to fail2ban")
			if err := c.transport.Connect(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		data, err := c.exchange(frame)
		if err != nil {
			var connErr *transport.ConnectionError
			if !errors.As(err, &connErr) {
				return protocol.Response{}, err
			}
			lastErr = err
			continue
		}
		return c.codec.Decode(data)
	}

	// leave no half-used socket behind for the next call
	_ = c.transport.Close()
	return protocol.Response{}, fmt.Errorf("fail2ban request %v failed after %d attempts: %w", cmd, maxAttempts, lastErr)
}

func (c *Client) exchange(frame []byte) ([]byte, error) {
	if err := c.transport.Write(frame); err != nil {
		return nil, err
	}
	return c.transport.Read()
}
