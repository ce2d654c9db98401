package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject notifications are published on
const DefaultSubject = "fail2ban.attackers"

// publisher is the part of *nats.Conn the notifier needs
type publisher interface {
	PublishMsg(m *nats.Msg) error
	Close()
}

// NATS publishes notification events on a subject
type NATS struct {
	conn    publisher
	subject string
}

// NewNATS connects to the NATS server at url
func NewNATS(url, subject string, opts ...nats.Option) (*NATS, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATS(nc, subject), nil
}

func newNATS(conn publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

// Post implements Notifier
func (n *NATS) Post(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := NewEvent(text)
	data, err := event.Encode()
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: n.subject,
		Data:    data,
		Header: nats.Header{
			"Type": []string{event.Type},
		},
	}
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
