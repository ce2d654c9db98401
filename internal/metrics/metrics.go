// Package metrics exposes jail and attacker state as Prometheus metrics.
package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fail2ban-exporter/internal/client"
	"fail2ban-exporter/internal/geo"

	"github.com/prometheus/client_golang/prometheus"
)

// attackerFields maps attacker label names to ip-api field names
var attackerFields = []struct {
	label string
	field string
}{
	{"country", "country"},
	{"region", "regionName"},
	{"city", "city"},
	{"isp", "isp"},
	{"lat", "lat"},
	{"lon", "lon"},
	{"mobile", "mobile"},
	{"proxy", "proxy"},
	{"hosting", "hosting"},
}

// Metrics holds all Prometheus metrics of the exporter
type Metrics struct {
	mu sync.Mutex

	JailCount       prometheus.Gauge
	CurrentlyFailed *prometheus.GaugeVec
	FailedTotal     *prometheus.GaugeVec
	CurrentlyBanned *prometheus.GaugeVec
	BannedTotal     *prometheus.GaugeVec
	Attackers       *prometheus.GaugeVec
	Errors          prometheus.Counter

	registerer prometheus.Registerer
	// label values currently set per attacker, needed to delete the series
	attackers map[string]prometheus.Labels
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	labels := []string{"ip_address"}
	for _, f := range attackerFields {
		labels = append(labels, f.label)
	}

	m := &Metrics{
		JailCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "f2b_jail_count_total",
			Help: "Total amount of active jails",
		}),
		CurrentlyFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "f2b_currently_failed",
			Help: "The number of IP addresses that triggered the filter since the start of Fail2Ban",
		}, []string{"jail"}),
		FailedTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "f2b_failed_total",
			Help: "Total number of IP addresses that triggered the filter",
		}, []string{"jail"}),
		CurrentlyBanned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "f2b_currently_banned",
			Help: "The number of IP addresses that were banned since the start of Fail2Ban",
		}, []string{"jail"}),
		BannedTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "f2b_banned_total",
			Help: "Total number of IP addresses that are banned",
		}, []string{"jail"}),
		Attackers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "f2b_current_attackers",
			Help: "Currently known attackers",
		}, labels),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "f2b_exporter_errors",
			Help: "The number of errors encountered since the exporter started",
		}),
		registerer: reg,
		attackers:  make(map[string]prometheus.Labels),
	}

	reg.MustRegister(
		m.JailCount,
		m.CurrentlyFailed,
		m.FailedTotal,
		m.CurrentlyBanned,
		m.BannedTotal,
		m.Attackers,
		m.Errors,
	)

	return m
}

// Close unregisters all metrics
func (m *Metrics) Close() {
	m.registerer.Unregister(m.JailCount)
	m.registerer.Unregister(m.CurrentlyFailed)
	m.registerer.Unregister(m.FailedTotal)
	m.registerer.Unregister(m.CurrentlyBanned)
	m.registerer.Unregister(m.BannedTotal)
	m.registerer.Unregister(m.Attackers)
	m.registerer.Unregister(m.Errors)
}

// UpdateJailCounts sets the four counters of a jail
func (m *Metrics) UpdateJailCounts(jail client.JailSnapshot) {
	m.CurrentlyFailed.WithLabelValues(jail.Name).Set(float64(jail.CurrentlyFailed))
	m.FailedTotal.WithLabelValues(jail.Name).Set(float64(jail.TotalFailed))
	m.CurrentlyBanned.WithLabelValues(jail.Name).Set(float64(jail.CurrentlyBanned))
	m.BannedTotal.WithLabelValues(jail.Name).Set(float64(jail.TotalBanned))
}

// RemoveJail drops the series of a jail that no longer exists
func (m *Metrics) RemoveJail(name string) {
	m.CurrentlyFailed.DeleteLabelValues(name)
	m.FailedTotal.DeleteLabelValues(name)
	m.CurrentlyBanned.DeleteLabelValues(name)
	m.BannedTotal.DeleteLabelValues(name)
}

// SetJailCount sets the number of active jails
func (m *Metrics) SetJailCount(n int) {
	m.JailCount.Set(float64(n))
}

// AddOrUpdateAttacker publishes an attacker series, replacing the previous
// series of the same address. Missing location fields are an error.
func (m *Metrics) AddOrUpdateAttacker(host geo.HostRecord) error {
	labels := prometheus.Labels{"ip_address": host.IP}
	for _, f := range attackerFields {
		v, ok := host.Fields[f.field]
		if !ok {
			return fmt.Errorf("attacker %s has no %q field", host.IP, f.field)
		}
		labels[f.label] = labelValue(v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.attackers[host.IP]; ok {
		m.Attackers.Delete(old)
	}
	m.attackers[host.IP] = labels
	m.Attackers.With(labels).Set(1)
	return nil
}

// RemoveAttacker drops the series of an address and reports whether it existed
func (m *Metrics) RemoveAttacker(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	labels, ok := m.attackers[ip]
	if !ok {
		return false
	}
	m.Attackers.Delete(labels)
	delete(m.attackers, ip)
	return true
}

// ReportError increments the exporter error counter
func (m *Metrics) ReportError() {
	m.Errors.Inc()
}

// labelValue renders field values the way ip-api shows them
func labelValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		// whole numbers keep a trailing ".0" as Python prints them
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.ContainsAny(s, ".NI") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprint(val)
	}
}
