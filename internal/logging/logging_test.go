package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"INFO":     logrus.InfoLevel,
		"debug":    logrus.DebugLevel,
		"WARNING":  logrus.WarnLevel,
		"warn":     logrus.WarnLevel,
		"Error":    logrus.ErrorLevel,
		"CRITICAL": logrus.FatalLevel,
		"":         logrus.InfoLevel,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("chatty")
	assert.ErrorContains(t, err, "chatty")
}

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput("warning", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.WithField("jail", "sshd").Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "jail=sshd")

	_, err = New("nope")
	assert.Error(t, err)
}
