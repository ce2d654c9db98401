package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fail2ban-exporter/internal/client"
	"fail2ban-exporter/internal/geo"
)

// MockJailSource serves jail listings and snapshots from memory
type MockJailSource struct {
	mu        sync.RWMutex
	jails     map[string]client.JailSnapshot
	listErr   error
	detailErr map[string]error
	panicMsg  string
	delay     time.Duration
}

// NewMockJailSource creates a source without jails
func NewMockJailSource() *MockJailSource {
	return &MockJailSource{
		jails:     make(map[string]client.JailSnapshot),
		detailErr: make(map[string]error),
	}
}

// SetJail sets the banned addresses of a jail, adding it if needed
func (m *MockJailSource) SetJail(name string, ips ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	banned := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		banned[ip] = struct{}{}
	}
	m.jails[name] = client.JailSnapshot{
		Name:            name,
		CurrentlyBanned: len(ips),
		TotalBanned:     len(ips),
		BannedIPs:       banned,
	}
}

// RemoveJail drops a jail from the listing
func (m *MockJailSource) RemoveJail(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jails, name)
}

// SetListError makes JailNames fail
func (m *MockJailSource) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// SetDetailError makes JailDetail fail for one jail
func (m *MockJailSource) SetDetailError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.detailErr, name)
		return
	}
	m.detailErr[name] = err
}

// SetPanic makes JailNames panic with msg
func (m *MockJailSource) SetPanic(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
}

// SetDelay makes JailNames take at least d
func (m *MockJailSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// JailNames implements reconcile.JailSource
func (m *MockJailSource) JailNames(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	delay := m.delay
	m.mu.RUnlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	names := make([]string, 0, len(m.jails))
	for name := range m.jails {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// JailDetail implements reconcile.JailSource
func (m *MockJailSource) JailDetail(ctx context.Context, name string) (client.JailSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.detailErr[name]; err != nil {
		return client.JailSnapshot{}, err
	}
	jail, ok := m.jails[name]
	if !ok {
		return client.JailSnapshot{}, fmt.Errorf("jail %q does not exist", name)
	}
	return jail, nil
}

// MockMetricsSink records what the engine published
type MockMetricsSink struct {
	mu        sync.RWMutex
	jails     map[string]client.JailSnapshot
	jailCount int
	attackers map[string]geo.HostRecord
	removed   []string
	errors    int
	addErr    map[string]error
}

// NewMockMetricsSink creates an empty sink
func NewMockMetricsSink() *MockMetricsSink {
	return &MockMetricsSink{
		jails:     make(map[string]client.JailSnapshot),
		attackers: make(map[string]geo.HostRecord),
		addErr:    make(map[string]error),
	}
}

// UpdateJailCounts implements reconcile.MetricsSink
func (m *MockMetricsSink) UpdateJailCounts(jail client.JailSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jails[jail.Name] = jail
}

// RemoveJail implements reconcile.MetricsSink
func (m *MockMetricsSink) RemoveJail(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jails, name)
}

// SetJailCount implements reconcile.MetricsSink
func (m *MockMetricsSink) SetJailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jailCount = n
}

// AddOrUpdateAttacker implements reconcile.MetricsSink
func (m *MockMetricsSink) AddOrUpdateAttacker(host geo.HostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.addErr[host.IP]; err != nil {
		return err
	}
	m.attackers[host.IP] = host
	return nil
}

// RemoveAttacker implements reconcile.MetricsSink
func (m *MockMetricsSink) RemoveAttacker(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, ip)
	if _, ok := m.attackers[ip]; !ok {
		return false
	}
	delete(m.attackers, ip)
	return true
}

// ReportError implements reconcile.MetricsSink
func (m *MockMetricsSink) ReportError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// SetAddError makes AddOrUpdateAttacker fail for ip
func (m *MockMetricsSink) SetAddError(ip string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addErr[ip] = err
}

// Jails returns the jails with published counters
func (m *MockMetricsSink) Jails() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.jails))
	for name := range m.jails {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// JailCount returns the last published jail count
func (m *MockMetricsSink) JailCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jailCount
}

// Attackers returns the addresses with a published series
func (m *MockMetricsSink) Attackers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.attackers))
	for ip := range m.attackers {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}

// Removed returns every address passed to RemoveAttacker
func (m *MockMetricsSink) Removed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.removed...)
}

// Errors returns how often ReportError was called
func (m *MockMetricsSink) Errors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errors
}

// MockLocator answers lookups with canned records
type MockLocator struct {
	mu      sync.RWMutex
	queries [][]string
	failing map[string]string
	now     time.Time
}

// NewMockLocator creates a locator stamping records with now
func NewMockLocator(now time.Time) *MockLocator {
	return &MockLocator{
		failing: make(map[string]string),
		now:     now,
	}
}

// SetNow changes the FetchedAt of future records
func (m *MockLocator) SetNow(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetFailing makes lookups of ip fail with msg, or succeed again when msg is empty
func (m *MockLocator) SetFailing(ip, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg == "" {
		delete(m.failing, ip)
		return
	}
	m.failing[ip] = msg
}

// Query implements geo.Locator
func (m *MockLocator) Query(ctx context.Context, ips []string) []geo.QueryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, append([]string{}, ips...))

	out := make([]geo.QueryResult, 0, len(ips))
	for _, ip := range ips {
		if msg, ok := m.failing[ip]; ok {
			out = append(out, geo.QueryResult{IP: ip, Status: geo.StatusFail, ErrorMessage: msg})
			continue
		}
		out = append(out, geo.QueryResult{
			IP:     ip,
			Status: geo.StatusSuccess,
			Result: &geo.HostRecord{
				IP:        ip,
				FetchedAt: m.now,
				Fields: map[string]any{
					"country":    "Norway",
					"regionName": "Oslo",
					"city":       "Oslo",
					"isp":        "Example ISP",
				},
			},
		})
	}
	return out
}

// Queries returns the address lists of every Query call
func (m *MockLocator) Queries() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]string{}, m.queries...)
}

// MockNotifier records posted texts
type MockNotifier struct {
	mu    sync.RWMutex
	texts []string
	err   error
}

// NewMockNotifier creates a notifier returning err from every Post
func NewMockNotifier(err error) *MockNotifier {
	return &MockNotifier{err: err}
}

// Post implements notify.Notifier
func (m *MockNotifier) Post(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return m.err
}

// Texts returns the posted texts
func (m *MockNotifier) Texts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.texts...)
}
