// Package reconcile diffs the banned addresses reported by fail2ban against
// the state retained from earlier polling cycles.
package reconcile

import (
	"context"

	"fail2ban-exporter/internal/client"
	"fail2ban-exporter/internal/geo"
	"fail2ban-exporter/internal/util"
)

// JailSource lists jails and their banned addresses
type JailSource interface {
	JailNames(ctx context.Context) ([]string, error)
	JailDetail(ctx context.Context, name string) (client.JailSnapshot, error)
}

// MetricsSink publishes jail counters and attacker series
type MetricsSink interface {
	UpdateJailCounts(jail client.JailSnapshot)
	RemoveJail(name string)
	SetJailCount(n int)
	AddOrUpdateAttacker(host geo.HostRecord) error
	RemoveAttacker(ip string) bool
	ReportError()
}

// State is retained between cycles. It is owned by a single goroutine.
type State struct {
	// jail name -> banned addresses seen on its last successful fetch
	KnownJails map[string]map[string]struct{}
	// address -> unix seconds of its last successful enrichment
	KnownAttackers map[string]int64
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		KnownJails:     make(map[string]map[string]struct{}),
		KnownAttackers: make(map[string]int64),
	}
}

// CurrentAttackers is the union of the banned addresses of all known jails
func (s *State) CurrentAttackers() map[string]struct{} {
	out := make(map[string]struct{})
	for _, ips := range s.KnownJails {
		for ip := range ips {
			out[ip] = struct{}{}
		}
	}
	return out
}

// Attackers lists the known attackers in sorted order
func (s *State) Attackers() []string {
	return util.SortedKeys(s.KnownAttackers)
}

// CycleResult holds the populations computed by one cycle
type CycleResult struct {
	New      []string
	Forgiven []string
	Outdated []string
	// successful refreshes of outdated attackers
	Updated int
	// lookups or metric updates that failed
	Failed int
	// new attackers enriched in this cycle
	Enriched []geo.HostRecord
}
