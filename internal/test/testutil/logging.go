package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestLogger is a logrus logger writing into a buffer and a hook
type TestLogger struct {
	logger *logrus.Logger
	buffer *syncBuffer
	hook   *TestLogHook
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewTestLogger creates a debug level logger capturing every entry
func NewTestLogger(t *testing.T) *TestLogger {
	buffer := &syncBuffer{}
	logger := logrus.New()
	logger.SetOutput(buffer)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		FullTimestamp:   true,
	})

	hook := NewTestLogHook(t, logrus.AllLevels...)
	logger.AddHook(hook)

	t.Cleanup(func() {
		if t.Failed() {
			t.Log("captured logs:\n" + buffer.String())
		}
	})

	return &TestLogger{
		logger: logger,
		buffer: buffer,
		hook:   hook,
	}
}

// Logger returns the underlying logger
func (l *TestLogger) Logger() *logrus.Logger {
	return l.logger
}

// Hook returns the hook holding the captured entries
func (l *TestLogger) Hook() *TestLogHook {
	return l.hook
}

// String returns the formatted log output
func (l *TestLogger) String() string {
	return l.buffer.String()
}

// RequireContains asserts that the log contains text
func (l *TestLogger) RequireContains(t *testing.T, text string) {
	require.Contains(t, l.String(), text)
}

// RequireNotContains asserts that the log does not contain text
func (l *TestLogger) RequireNotContains(t *testing.T, text string) {
	require.NotContains(t, l.String(), text)
}

// TestLogHook records log entries
type TestLogHook struct {
	t       *testing.T
	mu      sync.RWMutex
	levels  []logrus.Level
	entries []*logrus.Entry
}

// NewTestLogHook creates a new log hook
func NewTestLogHook(t *testing.T, levels ...logrus.Level) *TestLogHook {
	return &TestLogHook{
		t:       t,
		levels:  levels,
		entries: make([]*logrus.Entry, 0),
	}
}

// Levels returns the hook levels
func (h *TestLogHook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook
func (h *TestLogHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

// Entries returns the captured log entries
func (h *TestLogHook) Entries() []*logrus.Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*logrus.Entry{}, h.entries...)
}

// Clear clears the captured entries
func (h *TestLogHook) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make([]*logrus.Entry, 0)
}

// Find returns the entries at level whose message contains text
func (h *TestLogHook) Find(level logrus.Level, text string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, entry := range h.Entries() {
		if entry.Level == level && strings.Contains(entry.Message, text) {
			out = append(out, entry)
		}
	}
	return out
}

// RequireEntry asserts that an entry exists
func (h *TestLogHook) RequireEntry(t *testing.T, level logrus.Level, message string) {
	entries := h.Entries()
	for _, entry := range entries {
		if entry.Level == level && entry.Message == message {
			return
		}
	}
	t.Errorf("Log entry not found: [%s] %s", level, message)
}

// RequireNoEntry asserts that an entry does not exist
func (h *TestLogHook) RequireNoEntry(t *testing.T, level logrus.Level, message string) {
	entries := h.Entries()
	for _, entry := range entries {
		if entry.Level == level && entry.Message == message {
			t.Errorf("Unexpected log entry found: [%s] %s", level, message)
			return
		}
	}
}
