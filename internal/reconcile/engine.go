package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fail2ban-exporter/internal/geo"
	"fail2ban-exporter/internal/notify"
	"fail2ban-exporter/internal/util"

	"github.com/sirupsen/logrus"
)

// DefaultRefreshInterval is how long attacker geolocation data stays fresh
const DefaultRefreshInterval = 432000 * time.Second

// Engine runs reconciliation cycles against its collaborators
type Engine struct {
	source   JailSource
	sink     MetricsSink
	locator  geo.Locator
	notifier notify.Notifier
	log      logrus.FieldLogger

	refreshInterval time.Duration
	now             func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithNotifier sets the notifier told about new attackers
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLogger sets the engine logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithRefreshInterval sets the age after which attackers are looked up again
func WithRefreshInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.refreshInterval = d
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine
func NewEngine(source JailSource, sink MetricsSink, locator geo.Locator, opts ...Option) *Engine {
	e := &Engine{
		source:          source,
		sink:            sink,
		locator:         locator,
		log:             logrus.StandardLogger(),
		refreshInterval: DefaultRefreshInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle performs one reconciliation cycle, updating state in place.
// It only fails when the jail listing cannot be fetched, in which case the
// state is left untouched.
func (e *Engine) RunCycle(ctx context.Context, state *State) (*CycleResult, error) {
	names, err := e.source.JailNames(ctx)
	if err != nil {
		e.log.WithError(err).Error("Failed to get list of jails")
		e.sink.ReportError()
		return nil, err
	}

	listed := make(map[string]struct{}, len(names))
	for _, name := range names {
		listed[name] = struct{}{}

		jail, err := e.source.JailDetail(ctx, name)
		if err != nil {
			e.log.WithError(err).WithField("jail", name).Error("Failed to update metrics for jail")
			e.sink.ReportError()
			continue
		}
		ips := jail.BannedList()
		banned := make(map[string]struct{}, len(ips))
		for _, ip := range ips {
			banned[ip] = struct{}{}
		}
		state.KnownJails[name] = banned
		e.sink.UpdateJailCounts(jail)
		e.log.WithFields(logrus.Fields{"jail": name, "banned": ips}).Debug("Updated jail")
	}

	for name := range state.KnownJails {
		if _, ok := listed[name]; !ok {
			e.sink.RemoveJail(name)
			delete(state.KnownJails, name)
			e.log.WithField("jail", name).Info("Jail removed")
		}
	}
	e.sink.SetJailCount(len(listed))

	current := state.CurrentAttackers()
	result := &CycleResult{}

	newSet := make(map[string]struct{})
	for ip := range current {
		if _, known := state.KnownAttackers[ip]; !known {
			newSet[ip] = struct{}{}
			result.New = append(result.New, ip)
		}
	}
	for ip := range state.KnownAttackers {
		if _, ok := current[ip]; !ok {
			result.Forgiven = append(result.Forgiven, ip)
		}
	}

	now := e.now().Unix()
	maxAge := int64(e.refreshInterval / time.Second)
	for ip, fetched := range state.KnownAttackers {
		if now-fetched > maxAge {
			result.Outdated = append(result.Outdated, ip)
		}
	}
	sort.Strings(result.New)
	sort.Strings(result.Forgiven)
	sort.Strings(result.Outdated)

	lookup := make(map[string]struct{}, len(result.New)+len(result.Outdated))
	for _, ip := range result.New {
		lookup[ip] = struct{}{}
	}
	for _, ip := range result.Outdated {
		lookup[ip] = struct{}{}
	}
	if len(lookup) > 0 {
		e.enrich(ctx, state, util.SortedKeys(lookup), newSet, result)
	}

	for _, ip := range result.Forgiven {
		if !e.sink.RemoveAttacker(ip) {
			e.log.WithField("ip", ip).Debug("Forgiven attacker had no series")
		}
		delete(state.KnownAttackers, ip)
		e.log.WithField("ip", ip).Debug("Removed attacker")
	}

	e.log.Infof("%d new attacker(s), %d updated, %d forgiven",
		len(result.New), len(result.Outdated), len(result.Forgiven))

	if len(result.Enriched) > 0 && e.notifier != nil {
		if err := e.notifier.Post(ctx, FormatNotification(result.Enriched)); err != nil {
			e.log.WithError(err).Warn("Failed to send notification")
		}
	}
	return result, nil
}

func (e *Engine) enrich(ctx context.Context, state *State, ips []string, newSet map[string]struct{}, result *CycleResult) {
	for _, res := range e.locator.Query(ctx, ips) {
		log := e.log.WithField("ip", res.IP)
		if res.Status != geo.StatusSuccess || res.Result == nil {
			log.Warnf("Failed to get data for attacker: %s", res.ErrorMessage)
			e.sink.ReportError()
			result.Failed++
			continue
		}

		host := *res.Result
		if err := e.sink.AddOrUpdateAttacker(host); err != nil {
			log.WithError(err).Error("Failed to add/update attacker")
			e.sink.ReportError()
			result.Failed++
			continue
		}
		state.KnownAttackers[host.IP] = host.FetchedAt.Unix()
		log.Debug("Added/updated attacker")

		if _, isNew := newSet[host.IP]; isNew {
			result.Enriched = append(result.Enriched, host)
		} else {
			result.Updated++
		}
	}
	sort.Slice(result.Enriched, func(i, j int) bool {
		return result.Enriched[i].IP < result.Enriched[j].IP
	})
}

// FormatNotification renders the new attackers message
func FormatNotification(hosts []geo.HostRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new attacker(s) banned by fail2ban:", len(hosts))
	for _, host := range hosts {
		b.WriteString("\n- ")
		b.WriteString(host.IP)

		loc, err := host.Location()
		if err != nil {
			continue
		}
		var place []string
		for _, part := range []string{loc.City, loc.Region, loc.Country} {
			if part != "" {
				place = append(place, part)
			}
		}
		if len(place) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(place, ", "))
		}
		if loc.ISP != "" {
			fmt.Fprintf(&b, " via %s", loc.ISP)
		}
	}
	return b.String()
}
