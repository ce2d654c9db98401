package protocol

import "fmt"

// StatusOK is the status code of a successful response
const StatusOK = 0

// Response is a decoded reply from the daemon
type Response struct {
	Code    int
	Payload any
}

// OK reports whether the daemon accepted the command
func (r Response) OK() bool {
	return r.Code == StatusOK
}

// Err returns a DaemonError for failed responses and nil otherwise
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	msg := ""
	switch p := r.Payload.(type) {
	case nil:
	case string:
		msg = p
	default:
		msg = fmt.Sprint(p)
	}
	return &DaemonError{Code: r.Code, Message: msg}
}

// DaemonError is returned when the daemon answers with a non-zero status
type DaemonError struct {
	Code    int
	Message string
}

func (e *DaemonError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fail2ban returned status code %d", e.Code)
	}
	return fmt.Sprintf("fail2ban returned error (status %d): %s", e.Code, e.Message)
}

// ProtocolError is returned for frames that cannot be encoded or decoded
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
