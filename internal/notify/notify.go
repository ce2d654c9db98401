// Package notify delivers attacker notifications to webhooks, NATS and
// WebSocket subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// EventTypeNewAttackers is the type of events announcing new attackers
const EventTypeNewAttackers = "new_attackers"

// Notifier delivers a notification text
type Notifier interface {
	Post(ctx context.Context, text string) error
}

// Event is the JSON envelope published on NATS and the /events feed
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// NewEvent wraps a notification text
func NewEvent(text string) *Event {
	return &Event{
		Type:      EventTypeNewAttackers,
		Timestamp: time.Now().UTC(),
		Text:      text,
	}
}

// Encode serializes an event to JSON
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent deserializes an event from JSON
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Multi posts to every notifier and joins their errors
type Multi []Notifier

// Post implements Notifier
func (m Multi) Post(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Post(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
