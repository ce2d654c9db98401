package protocol

import (
	"bytes"
	"errors"
	"testing"

	pickle "github.com/kisielk/og-rek"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringer struct{ name string }

func (s stringer) String() string { return "jail:" + s.name }

func TestEncodeRoundTrip(t *testing.T) {
	codec := NewPickleCodec()

	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "status", cmd: NewCommand("status")},
		{name: "jail status", cmd: NewCommand("status", "sshd")},
		{name: "ban", cmd: NewCommand("set", "sshd", "banip", "203.0.113.7")},
		{name: "unicode", cmd: NewCommand("status", "jäil-ü")},
		{name: "empty token", cmd: NewCommand("status", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := codec.Encode(tt.cmd)
			require.NoError(t, err)
			require.True(t, bytes.HasSuffix(frame, EndCommand))

			v, err := codec.Unmarshal(StripTerminator(frame))
			require.NoError(t, err)
			assert.Equal(t, []any(tt.cmd), v)
		})
	}
}

func TestEncodeCoercesNonPrimitives(t *testing.T) {
	codec := NewPickleCodec()

	frame, err := codec.Encode(NewCommand("status", stringer{name: "sshd"}, 3, true, nil))
	require.NoError(t, err)

	v, err := codec.Unmarshal(StripTerminator(frame))
	require.NoError(t, err)
	assert.Equal(t, []any{"status", "jail:sshd", int64(3), true, "None"}, v)
}

func TestDecodePayloadShapes(t *testing.T) {
	codec := NewPickleCodec()

	tests := []struct {
		name    string
		cmd     Command
		code    int
		payload any
	}{
		{name: "no payload", cmd: NewCommand(0), code: 0, payload: nil},
		{name: "single payload", cmd: NewCommand(0, "pong"), code: 0, payload: "pong"},
		{name: "many payload", cmd: NewCommand(0, "a", "b"), code: 0, payload: []any{"a", "b"}},
		{name: "nested payload", cmd: NewCommand(0, []any{Tuple{"Number of jail", 1}}), code: 0,
			payload: []any{[]any{"Number of jail", int64(1)}}},
		{name: "failure", cmd: NewCommand(1, "boom"), code: 1, payload: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := codec.Encode(tt.cmd)
			require.NoError(t, err)

			resp, err := codec.Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.payload, resp.Payload)
		})
	}
}

func TestDecodeStripsTrailingData(t *testing.T) {
	codec := NewPickleCodec()

	frame, err := codec.Encode(NewCommand(0, "ok"))
	require.NoError(t, err)

	resp, err := codec.Decode(append(frame, []byte("garbage")...))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Payload)
}

func TestDecodeMalformed(t *testing.T) {
	codec := NewPickleCodec()

	notList, err := codec.Marshal("hello")
	require.NoError(t, err)
	emptyList, err := codec.Marshal([]any{})
	require.NoError(t, err)
	badCode, err := codec.Marshal([]any{"zero", "x"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "garbage", frame: append([]byte("\xff\xfegarbage"), EndCommand...)},
		{name: "empty", frame: EndCommand},
		{name: "not a list", frame: append(notList, EndCommand...)},
		{name: "empty list", frame: append(emptyList, EndCommand...)},
		{name: "non integer status", frame: append(badCode, EndCommand...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.frame)
			require.Error(t, err)
			var perr *ProtocolError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestDecodeExceptionPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := pickle.NewEncoderWithConfig(&buf, &pickle.EncoderConfig{Protocol: PickleProtocol})
	err := enc.Encode([]any{int64(1), pickle.Call{
		Callable: pickle.Class{Module: "builtins", Name: "UnknownJailException"},
		Args:     pickle.Tuple{"nginx"},
	}})
	require.NoError(t, err)

	resp, err := NewPickleCodec().Decode(append(buf.Bytes(), EndCommand...))
	require.NoError(t, err)
	assert.False(t, resp.OK())

	var derr *DaemonError
	require.True(t, errors.As(resp.Err(), &derr))
	assert.Equal(t, 1, derr.Code)
	assert.Equal(t, "UnknownJailException: nginx", derr.Message)
}

func TestResponseErr(t *testing.T) {
	assert.NoError(t, Response{Code: 0, Payload: "x"}.Err())

	err := Response{Code: 2}.Err()
	require.Error(t, err)
	assert.Equal(t, "fail2ban returned status code 2", err.Error())

	err = Response{Code: 1, Payload: "Invalid command"}.Err()
	assert.Contains(t, err.Error(), "Invalid command")
}

func TestHasTerminator(t *testing.T) {
	assert.True(t, HasTerminator(append([]byte("abc"), EndCommand...), 32))
	assert.False(t, HasTerminator([]byte("abc<F2B_END_COMM"), 32))

	// end marker followed by more than the window is not seen
	data := append(append([]byte{}, EndCommand...), bytes.Repeat([]byte("x"), 20)...)
	assert.False(t, HasTerminator(data, 32))
}

func TestCloseFrame(t *testing.T) {
	assert.Equal(t, "<F2B_CLOSE_COMMAND><F2B_END_COMMAND>", string(CloseFrame))
}
