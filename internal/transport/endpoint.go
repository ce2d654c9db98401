package transport

import (
	"fmt"
	"regexp"
)

var endpointPattern = regexp.MustCompile(`^(tcp|unix)://(.+)$`)

// Endpoint is a parsed control socket address
type Endpoint struct {
	Network string // "tcp" or "unix"
	Address string
}

// ParseEndpoint parses "tcp://host:port" or "unix:///path/to/socket"
func ParseEndpoint(uri string) (Endpoint, error) {
	m := endpointPattern.FindStringSubmatch(uri)
	if m == nil {
		return Endpoint{}, &ConfigurationError{
			Endpoint: uri,
			Reason:   "specify either tcp:// or unix:// as the protocol along with the socket address",
		}
	}
	return Endpoint{Network: m[1], Address: m[2]}, nil
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.Network, e.Address)
}

// ConfigurationError is returned for endpoints that cannot be used
type ConfigurationError struct {
	Endpoint string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid endpoint %q: %s", e.Endpoint, e.Reason)
}

// ConnectionError wraps socket failures
type ConnectionError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
