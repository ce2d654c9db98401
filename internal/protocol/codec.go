// Package protocol implements the framing used on the fail2ban control socket.
package protocol

import (
	"bytes"
	"errors"
	"fmt"

	pickle "github.com/kisielk/og-rek"
)

// Frame markers understood by the fail2ban server
var (
	EndCommand   = []byte("<F2B_END_COMMAND>")
	CloseCommand = []byte("<F2B_CLOSE_COMMAND>")
	CloseFrame   = append(append([]byte{}, CloseCommand...), EndCommand...)
)

// PickleProtocol is the pickle protocol version used for requests
const PickleProtocol = 3

// Command is an ordered list of tokens sent to the daemon
type Command []any

// NewCommand creates a command from its tokens
func NewCommand(tokens ...any) Command {
	return Command(tokens)
}

// Codec converts commands to frames and frames to responses
type Codec interface {
	Encode(cmd Command) ([]byte, error)
	Decode(frame []byte) (Response, error)
}

// PickleCodec speaks the pickle based format of the fail2ban server
type PickleCodec struct{}

// NewPickleCodec returns the default codec
func NewPickleCodec() *PickleCodec {
	return &PickleCodec{}
}

// Encode serializes the command and appends the end marker
func (c *PickleCodec) Encode(cmd Command) ([]byte, error) {
	tokens := make([]any, len(cmd))
	for i, token := range cmd {
		tokens[i] = coerce(token)
	}

	data, err := c.Marshal(tokens)
	if err != nil {
		return nil, err
	}
	return append(data, EndCommand...), nil
}

// Decode parses a response frame into a status code and payload
func (c *PickleCodec) Decode(frame []byte) (Response, error) {
	v, err := c.Unmarshal(StripTerminator(frame))
	if err != nil {
		return Response{}, err
	}

	items, ok := v.([]any)
	if !ok {
		return Response{}, &ProtocolError{Op: "decode", Err: fmt.Errorf("expected list, got %T", v)}
	}
	if len(items) == 0 {
		return Response{}, &ProtocolError{Op: "decode", Err: errors.New("empty response")}
	}

	code, ok := Int(items[0])
	if !ok {
		return Response{}, &ProtocolError{Op: "decode", Err: fmt.Errorf("invalid status code %v", items[0])}
	}

	resp := Response{Code: code}
	switch rest := items[1:]; len(rest) {
	case 0:
	case 1:
		resp.Payload = rest[0]
	default:
		resp.Payload = rest
	}
	return resp, nil
}

// Marshal pickles a single value without framing
func (c *PickleCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := pickle.NewEncoderWithConfig(&buf, &pickle.EncoderConfig{Protocol: PickleProtocol})
	if err := enc.Encode(coerce(v)); err != nil {
		return nil, &ProtocolError{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// Unmarshal unpickles a single value and normalizes it to plain Go types
func (c *PickleCodec) Unmarshal(data []byte) (any, error) {
	v, err := pickle.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, &ProtocolError{Op: "decode", Err: err}
	}
	return normalize(v), nil
}

// StripTerminator drops everything from the last end marker onward
func StripTerminator(frame []byte) []byte {
	if i := bytes.LastIndex(frame, EndCommand); i >= 0 {
		return frame[:i]
	}
	return frame
}

// HasTerminator reports whether the end marker is present in the last
// window bytes of data
func HasTerminator(data []byte, window int) bool {
	if len(data) > window {
		data = data[len(data)-window:]
	}
	return bytes.Contains(data, EndCommand)
}
