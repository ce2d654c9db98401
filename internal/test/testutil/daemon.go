package testutil

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"fail2ban-exporter/internal/protocol"
)

// DaemonHandler answers one decoded command with a status code and payload
type DaemonHandler func(cmd []any) (int, any)

// FakeDaemon speaks the fail2ban control socket protocol
type FakeDaemon struct {
	*TestStreamServer

	mu         sync.Mutex
	codec      *protocol.PickleCodec
	handler    DaemonHandler
	commands   [][]any
	conns      int
	closes     int
	dropNext   int
	chunkSize  int
	chunkDelay time.Duration
}

// NewFakeDaemon starts a fake daemon on the given network ("tcp" or "unix")
func NewFakeDaemon(t *testing.T, network string, handler DaemonHandler) *FakeDaemon {
	d := &FakeDaemon{
		codec:   protocol.NewPickleCodec(),
		handler: handler,
	}
	d.TestStreamServer = NewTestStreamServer(t, network, d.serve)
	return d
}

// SetHandler swaps the command handler
func (d *FakeDaemon) SetHandler(handler DaemonHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// DropNext makes the daemon hang up instead of answering the next n commands
func (d *FakeDaemon) DropNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropNext = n
}

// SplitResponses makes the daemon write responses in chunks of size bytes
func (d *FakeDaemon) SplitResponses(size int, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunkSize = size
	d.chunkDelay = delay
}

// Commands returns every command received so far
func (d *FakeDaemon) Commands() [][]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]any{}, d.commands...)
}

// Connections returns the number of accepted connections
func (d *FakeDaemon) Connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns
}

// CloseFrames returns the number of close frames received
func (d *FakeDaemon) CloseFrames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func (d *FakeDaemon) serve(conn net.Conn) {
	defer conn.Close()

	d.mu.Lock()
	d.conns++
	d.mu.Unlock()

	var buf []byte
	chunk := make([]byte, 1024)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)

		for {
			i := bytes.Index(buf, protocol.EndCommand)
			if i < 0 {
				break
			}
			frame := buf[:i]
			buf = buf[i+len(protocol.EndCommand):]
			if !d.handleFrame(conn, frame) {
				return
			}
		}

		if err != nil {
			return
		}
	}
}

// handleFrame answers one request and reports whether to keep the
// connection open
func (d *FakeDaemon) handleFrame(conn net.Conn, frame []byte) bool {
	if bytes.Equal(frame, protocol.CloseCommand) {
		d.mu.Lock()
		d.closes++
		d.mu.Unlock()
		return false
	}

	v, err := d.codec.Unmarshal(frame)
	if err != nil {
		return false
	}
	cmd, _ := v.([]any)

	d.mu.Lock()
	d.commands = append(d.commands, cmd)
	drop := d.dropNext > 0
	if drop {
		d.dropNext--
	}
	handler := d.handler
	size, delay := d.chunkSize, d.chunkDelay
	d.mu.Unlock()

	if drop {
		return false
	}

	code, payload := handler(cmd)
	reply := protocol.Tuple{code}
	if payload != nil {
		reply = append(reply, payload)
	}
	data, err := d.codec.Marshal(reply)
	if err != nil {
		return false
	}
	data = append(data, protocol.EndCommand...)

	if size <= 0 {
		_, err = conn.Write(data)
		return err == nil
	}
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		if _, err := conn.Write(data[:n]); err != nil {
			return false
		}
		data = data[n:]
		time.Sleep(delay)
	}
	return true
}

// JailStatus builds the payload fail2ban returns for "status <jail>"
func JailStatus(currentlyFailed, totalFailed int, files []string, currentlyBanned, totalBanned int, ips []string) any {
	return []any{
		protocol.Tuple{"Filter", []any{
			protocol.Tuple{"Currently failed", currentlyFailed},
			protocol.Tuple{"Total failed", totalFailed},
			protocol.Tuple{"File list", files},
		}},
		protocol.Tuple{"Actions", []any{
			protocol.Tuple{"Currently banned", currentlyBanned},
			protocol.Tuple{"Total banned", totalBanned},
			protocol.Tuple{"Banned IP list", ips},
		}},
	}
}

// ServerStatus builds the payload fail2ban returns for "status"
func ServerStatus(jails ...string) any {
	list := ""
	for i, j := range jails {
		if i > 0 {
			list += ", "
		}
		list += j
	}
	return []any{
		protocol.Tuple{"Number of jail", len(jails)},
		protocol.Tuple{"Jail list", list},
	}
}
