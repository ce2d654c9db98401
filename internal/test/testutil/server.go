package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHTTPServer represents a test HTTP server
type TestHTTPServer struct {
	t      *testing.T
	Server *httptest.Server
}

// NewTestHTTPServer creates a new test HTTP server
func NewTestHTTPServer(t *testing.T, handler http.Handler) *TestHTTPServer {
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
	})
	return &TestHTTPServer{
		t:      t,
		Server: server,
	}
}

// URL returns the server URL
func (s *TestHTTPServer) URL() string {
	return s.Server.URL
}

// Client returns an HTTP client configured for the test server
func (s *TestHTTPServer) Client() *http.Client {
	return s.Server.Client()
}

// TestStreamServer accepts tcp or unix connections and hands each to a handler
type TestStreamServer struct {
	t        *testing.T
	listener net.Listener
	network  string
	addr     string
}

// NewTestStreamServer creates a stream server on a loopback port ("tcp")
// or a socket file in a temporary directory ("unix")
func NewTestStreamServer(t *testing.T, network string, handler func(net.Conn)) *TestStreamServer {
	addr := "127.0.0.1:0"
	if network == "unix" {
		addr = filepath.Join(t.TempDir(), "f2b.sock")
	}

	listener, err := net.Listen(network, addr)
	require.NoError(t, err)

	server := &TestStreamServer{
		t:        t,
		listener: listener,
		network:  network,
		addr:     listener.Addr().String(),
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handler(conn)
		}
	}()

	t.Cleanup(func() {
		listener.Close()
	})

	return server
}

// Addr returns the server address
func (s *TestStreamServer) Addr() string {
	return s.addr
}

// URI returns the address in endpoint form, e.g. tcp://127.0.0.1:4242
func (s *TestStreamServer) URI() string {
	return s.network + "://" + s.addr
}

// Close stops accepting connections
func (s *TestStreamServer) Close() error {
	return s.listener.Close()
}
