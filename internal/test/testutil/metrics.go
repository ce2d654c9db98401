package testutil

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

// TestMetrics is a private registry served over HTTP
type TestMetrics struct {
	t        *testing.T
	server   *TestHTTPServer
	registry *prometheus.Registry
}

// NewTestMetrics creates a registry and a server exposing it
func NewTestMetrics(t *testing.T) *TestMetrics {
	registry := prometheus.NewRegistry()
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	server := NewTestHTTPServer(t, handler)

	return &TestMetrics{
		t:        t,
		server:   server,
		registry: registry,
	}
}

// Registry returns the registry to register collectors with
func (m *TestMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// URL returns the metrics server URL
func (m *TestMetrics) URL() string {
	return m.server.URL()
}

// GetMetricsOutput scrapes the server and returns the exposition text
func (m *TestMetrics) GetMetricsOutput() string {
	resp, err := http.Get(m.URL())
	require.NoError(m.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(m.t, err)
	return string(body)
}

// RequireMetricsContain asserts that the scrape contains every line
func (m *TestMetrics) RequireMetricsContain(expected ...string) {
	output := m.GetMetricsOutput()
	for _, exp := range expected {
		require.Contains(m.t, output, exp)
	}
}

// RequireMetricsNotContain asserts that the scrape contains none of the strings
func (m *TestMetrics) RequireMetricsNotContain(unexpected ...string) {
	output := m.GetMetricsOutput()
	for _, unexp := range unexpected {
		require.NotContains(m.t, output, unexp)
	}
}

// SeriesCount counts exposed samples of a metric family
func (m *TestMetrics) SeriesCount(name string) int {
	n := 0
	for _, line := range strings.Split(m.GetMetricsOutput(), "\n") {
		if strings.HasPrefix(line, name+"{") || strings.HasPrefix(line, name+" ") {
			n++
		}
	}
	return n
}
