package transport

import "time"

// Option configures a Transport
type Option interface {
	apply(*Transport)
}

type optionFunc func(*Transport)

func (of optionFunc) apply(t *Transport) { of(t) }

// WithChunkSize sets the size of each socket read
func WithChunkSize(size int) Option {
	return optionFunc(func(t *Transport) {
		t.chunkSize = size
	})
}

// WithTimeout bounds dialing and every read or write. Zero disables deadlines.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(t *Transport) {
		t.timeout = d
	})
}

// WithDialer replaces the default net.Dialer
func WithDialer(d Dialer) Option {
	return optionFunc(func(t *Transport) {
		t.dialer = d
	})
}
