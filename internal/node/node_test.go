package node

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"fail2ban-exporter/internal/config"
	"fail2ban-exporter/internal/notify"
	"fail2ban-exporter/internal/test/testutil"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T) *testutil.FakeDaemon {
	return testutil.NewFakeDaemon(t, "unix", func(cmd []any) (int, any) {
		switch {
		case len(cmd) == 1 && cmd[0] == "status":
			return 0, testutil.ServerStatus("sshd")
		case len(cmd) == 2 && cmd[0] == "status" && cmd[1] == "sshd":
			return 0, testutil.JailStatus(1, 7, []string{"/var/log/auth.log"}, 1, 3, []string{"203.0.113.7"})
		}
		return 1, "Invalid command"
	})
}

func fakeIPAPI(t *testing.T) *testutil.TestHTTPServer {
	return testutil.NewTestHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ips []string
		_ = json.NewDecoder(r.Body).Decode(&ips)
		out := make([]map[string]any, 0, len(ips))
		for _, ip := range ips {
			out = append(out, map[string]any{
				"status": "success", "query": ip,
				"country": "Norway", "regionName": "Oslo", "city": "Oslo", "isp": "Example ISP",
				"lat": 59.91, "lon": 10.75, "mobile": false, "proxy": false, "hosting": true,
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func testConfig(daemon *testutil.FakeDaemon, ipapi *testutil.TestHTTPServer) *config.Config {
	return &config.Config{
		ScrapeInterval:  20 * time.Millisecond,
		RefreshInterval: time.Hour,
		SocketURI:       daemon.URI(),
		SocketTimeout:   time.Second,
		IPAPIURL:        ipapi.URL(),
		IPAPIBatchSize:  100,
		IPAPITimeout:    time.Second,
		UserAgent:       "fail2ban-exporter/test",
		Host:            "127.0.0.1",
		Port:            0,
		EventsEnabled:   true,
		NATSSubject:     config.DefaultNATSSubject,
	}
}

func TestNodeExportsDaemonState(t *testing.T) {
	daemon := fakeDaemon(t)
	cfg := testConfig(daemon, fakeIPAPI(t))
	logs := testutil.NewTestLogger(t)

	n, err := NewNode(cfg, logs.Logger())
	require.NoError(t, err)

	// subscribe before the first cycle so the announcement is not missed
	events := testutil.NewTestHTTPServer(t, n.server.Handler())
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(events.URL(), "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	testutil.RequireEventually(t, func() bool { return n.feed.Subscribers() == 1 }, 2*time.Second)

	require.NoError(t, n.Start(context.Background()))
	assert.Error(t, n.Start(context.Background()))

	scrape := testutil.NewTestHTTPServer(t, promhttp.HandlerFor(n.Registry(), promhttp.HandlerOpts{}))
	testutil.RequireEventually(t, func() bool {
		resp, err := http.Get(scrape.URL())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		out := string(body)
		return strings.Contains(out, `ip_address="203.0.113.7"`) &&
			strings.Contains(out, `f2b_banned_total{jail="sshd"} 3`) &&
			strings.Contains(out, "f2b_jail_count_total 1")
	}, 3*time.Second)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := notify.DecodeEvent(data)
	require.NoError(t, err)
	assert.Contains(t, event.Text, "203.0.113.7")

	assert.Greater(t, n.Uptime(), time.Duration(0))
	require.NoError(t, n.Stop())
	stopped := logs.Hook().Find(logrus.InfoLevel, "Node stopped")
	require.Len(t, stopped, 1)
	assert.Equal(t, 1, stopped[0].Data["attackers"])
	// the client says goodbye on the control socket
	testutil.RequireEventually(t, func() bool { return daemon.CloseFrames() == 1 }, 2*time.Second)
}

func TestNodeInvalidSocketURI(t *testing.T) {
	cfg := testConfig(fakeDaemon(t), fakeIPAPI(t))
	cfg.SocketURI = "ftp://nowhere"

	_, err := NewNode(cfg, testutil.NewTestLogger(t).Logger())
	assert.Error(t, err)
}

func TestNodeStopWithoutStart(t *testing.T) {
	cfg := testConfig(fakeDaemon(t), fakeIPAPI(t))
	cfg.EventsEnabled = false

	n, err := NewNode(cfg, testutil.NewTestLogger(t).Logger())
	require.NoError(t, err)
	assert.Nil(t, n.feed)
	assert.Zero(t, n.Uptime())
	assert.NoError(t, n.Stop())
}
