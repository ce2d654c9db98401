package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"fail2ban-exporter/internal/test/testutil"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	texts []string
	err   error
}

func (r *recordingNotifier) Post(ctx context.Context, text string) error {
	r.texts = append(r.texts, text)
	return r.err
}

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("webhook down")
	errB := errors.New("nats down")
	a := &recordingNotifier{err: errA}
	b := &recordingNotifier{}
	c := &recordingNotifier{err: errB}

	err := Multi{a, b, c}.Post(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	// a failing notifier does not stop the others
	for _, n := range []*recordingNotifier{a, b, c} {
		assert.Equal(t, []string{"hello"}, n.texts)
	}

	assert.NoError(t, Multi{b}.Post(context.Background(), "again"))
	assert.NoError(t, Multi{}.Post(context.Background(), "nobody"))
}

func TestEventRoundTrip(t *testing.T) {
	event := NewEvent("2 new attacker(s)")
	data, err := event.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, EventTypeNewAttackers, decoded.Type)
	assert.Equal(t, "2 new attacker(s)", decoded.Text)
	assert.True(t, event.Timestamp.Equal(decoded.Timestamp))
}

func TestWebhook(t *testing.T) {
	var mu sync.Mutex
	var got map[string]string
	var agent, contentType string
	server := testutil.NewTestHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		agent = r.UserAgent()
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))

	w := NewWebhook(server.URL(), "fail2ban-exporter/test", time.Second)
	require.NoError(t, w.Post(context.Background(), "new attacker 203.0.113.7"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"text": "new attacker 203.0.113.7"}, got)
	assert.Equal(t, "fail2ban-exporter/test", agent)
	assert.Equal(t, "application/json", contentType)
}

func TestWebhookErrorStatus(t *testing.T) {
	server := testutil.NewTestHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))

	err := NewWebhook(server.URL(), "", time.Second).Post(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type fakePublisher struct {
	msgs   []*nats.Msg
	err    error
	closed bool
}

func (p *fakePublisher) PublishMsg(m *nats.Msg) error {
	p.msgs = append(p.msgs, m)
	return p.err
}

func (p *fakePublisher) Close() { p.closed = true }

func TestNATSPublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	n := newNATS(pub, "")

	require.NoError(t, n.Post(context.Background(), "1 new attacker(s)"))
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Equal(t, EventTypeNewAttackers, msg.Header.Get("Type"))

	event, err := DecodeEvent(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, "1 new attacker(s)", event.Text)

	require.NoError(t, n.Close())
	assert.True(t, pub.closed)
}

func TestNATSErrors(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrConnectionClosed}
	n := newNATS(pub, "custom.subject")

	err := n.Post(context.Background(), "x")
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	assert.Equal(t, "custom.subject", pub.msgs[0].Subject)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Post(ctx, "x"), context.Canceled)
	assert.Len(t, pub.msgs, 1)
}

func TestFeedBroadcast(t *testing.T) {
	feed := NewFeed(testutil.NewTestLogger(t).Logger())
	server := testutil.NewTestHTTPServer(t, feed)
	url := "ws" + strings.TrimPrefix(server.URL(), "http")

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	first, second := dial(), dial()
	testutil.RequireEventually(t, func() bool { return feed.Subscribers() == 2 }, 2*time.Second)

	require.NoError(t, feed.Post(context.Background(), "3 new attacker(s)"))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		event, err := DecodeEvent(data)
		require.NoError(t, err)
		assert.Equal(t, "3 new attacker(s)", event.Text)
	}

	// a departed subscriber is forgotten
	require.NoError(t, first.Close())
	testutil.RequireEventually(t, func() bool { return feed.Subscribers() == 1 }, 2*time.Second)

	require.NoError(t, feed.Close())
	assert.Equal(t, 0, feed.Subscribers())
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestFeedPostWithoutSubscribers(t *testing.T) {
	feed := NewFeed(testutil.NewTestLogger(t).Logger())
	assert.NoError(t, feed.Post(context.Background(), "nobody listens"))
	assert.NoError(t, feed.Close())
}
