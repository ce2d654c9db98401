package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fail2ban-exporter/internal/util"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 16
)

type subscriber struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// Feed broadcasts notification events to WebSocket subscribers of /events
type Feed struct {
	mu sync.RWMutex

	upgrader    websocket.Upgrader
	subscribers map[*subscriber]struct{}
	log         logrus.FieldLogger

	// Connection tracking
	activeConns sync.WaitGroup
	closed      bool
}

// NewFeed creates an empty feed
func NewFeed(log logrus.FieldLogger) *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// read-only feed, any origin may subscribe
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
		log:         log,
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remoteIP := util.GetRemoteIP(r)

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithError(err).WithField("remote", remoteIP).Warn("WebSocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBacklog), remote: remoteIP}
	if !f.add(sub) {
		conn.Close()
		return
	}

	defer func() {
		f.remove(sub)
		conn.Close()
		f.activeConns.Done()
	}()
	f.log.WithField("remote", remoteIP).Debug("Feed subscriber connected")

	// the reader only notices the peer going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				f.log.WithError(err).WithField("remote", remoteIP).Debug("Feed write failed")
				return
			}
		}
	}
}

// Post implements Notifier. Subscribers whose backlog is full miss the event.
func (f *Feed) Post(ctx context.Context, text string) error {
	data, err := NewEvent(text).Encode()
	if err != nil {
		return err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subscribers {
		select {
		case sub.send <- data:
		default:
			f.log.WithField("remote", sub.remote).Warn("Feed subscriber too slow, dropping event")
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Close disconnects every subscriber and waits for their handlers to return
func (f *Feed) Close() error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		for sub := range f.subscribers {
			close(sub.send)
			delete(f.subscribers, sub)
		}
	}
	f.mu.Unlock()

	f.activeConns.Wait()
	return nil
}

func (f *Feed) add(sub *subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.subscribers[sub] = struct{}{}
	f.activeConns.Add(1)
	return true
}

func (f *Feed) remove(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, sub)
}
