// Package geo looks up geolocation data for attacker addresses.
package geo

import (
	"context"
	"time"

	"fail2ban-exporter/internal/util"
)

// QueryStatus is the outcome of one lookup
type QueryStatus int

const (
	StatusSuccess QueryStatus = iota
	StatusFail
)

func (s QueryStatus) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "fail"
}

// HostRecord is the enrichment result for one address
type HostRecord struct {
	IP        string
	FetchedAt time.Time
	Fields    map[string]any
}

// Location is the subset of fields used in notifications
type Location struct {
	Country string `json:"country"`
	Region  string `json:"regionName"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
}

// Location decodes the well-known location fields of the record
func (h HostRecord) Location() (Location, error) {
	var loc Location
	err := util.DecodeFields(h.Fields, &loc)
	return loc, err
}

// QueryResult pairs an address with its lookup outcome
type QueryResult struct {
	IP           string
	Status       QueryStatus
	Result       *HostRecord
	ErrorMessage string
}

// Locator resolves a batch of addresses. Every input address appears
// exactly once in the output.
type Locator interface {
	Query(ctx context.Context, ips []string) []QueryResult
}

func failed(ip, msg string) QueryResult {
	return QueryResult{IP: ip, Status: StatusFail, ErrorMessage: msg}
}
