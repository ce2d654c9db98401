// Package node wires the exporter components together and runs them.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fail2ban-exporter/internal/client"
	"fail2ban-exporter/internal/config"
	"fail2ban-exporter/internal/geo"
	"fail2ban-exporter/internal/metrics"
	"fail2ban-exporter/internal/notify"
	"fail2ban-exporter/internal/reconcile"
	"fail2ban-exporter/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const webhookTimeout = 10 * time.Second

type Node struct {
	mu sync.Mutex

	// Core components
	config   *config.Config
	log      logrus.FieldLogger
	client   *client.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	server   *metrics.Server
	runner   *reconcile.Runner

	// Notification outputs, nil when disabled
	feed *notify.Feed
	nats *notify.NATS

	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewNode builds every component from the configuration. Nothing is
// started and the fail2ban socket is not opened yet.
func NewNode(cfg *config.Config, log logrus.FieldLogger) (*Node, error) {
	f2b, err := client.New(cfg.SocketURI,
		client.WithLogger(log.WithField("component", "client")),
		client.WithTransportOptions(transport.WithTimeout(cfg.SocketTimeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fail2ban client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	locator := geo.NewIPAPI(geo.Config{
		URL:       cfg.IPAPIURL,
		BatchSize: cfg.IPAPIBatchSize,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.IPAPITimeout,
	}, log.WithField("component", "ipapi"))

	n := &Node{
		config:   cfg,
		log:      log,
		client:   f2b,
		registry: registry,
		metrics:  m,
		server:   metrics.NewServer(cfg.ListenAddr(), registry, log.WithField("component", "http")),
		done:     make(chan struct{}),
	}

	var notifiers notify.Multi
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, cfg.UserAgent, webhookTimeout))
	}
	if cfg.NATSURL != "" {
		nc, err := notify.NewNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.nats = nc
		notifiers = append(notifiers, nc)
	}
	if cfg.EventsEnabled {
		n.feed = notify.NewFeed(log.WithField("component", "events"))
		n.server.Handle("/events", n.feed)
		notifiers = append(notifiers, n.feed)
	}

	opts := []reconcile.Option{
		reconcile.WithLogger(log.WithField("component", "reconcile")),
		reconcile.WithRefreshInterval(cfg.RefreshInterval),
	}
	if len(notifiers) > 0 {
		opts = append(opts, reconcile.WithNotifier(notifiers))
	}
	engine := reconcile.NewEngine(f2b, m, locator, opts...)
	n.runner = reconcile.NewRunner(engine, cfg.ScrapeInterval, log.WithField("component", "runner"))

	return n, nil
}

// Start serves metrics and starts polling until ctx is done or Stop is called
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return errors.New("node already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := n.server.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	n.cancel = cancel
	n.startTime = time.Now()

	go func() {
		defer close(n.done)
		if err := n.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.log.WithError(err).Error("Runner stopped")
		}
	}()
	return nil
}

// Stop halts polling, shuts the server down and releases every connection
func (n *Node) Stop() error {
	n.mu.Lock()
	cancel := n.cancel
	n.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		<-n.done
		n.log.WithFields(logrus.Fields{
			"uptime":    n.Uptime().Round(time.Second).String(),
			"attackers": len(n.runner.State().Attackers()),
		}).Info("Node stopped")
		if err := n.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if err := n.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the components without waiting for the runner
func (n *Node) Close() error {
	var errs []error
	if n.feed != nil {
		errs = append(errs, n.feed.Close())
	}
	if n.nats != nil {
		errs = append(errs, n.nats.Close())
	}
	if err := n.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close fail2ban client: %w", err))
	}
	n.metrics.Close()
	return errors.Join(errs...)
}

// Registry returns the registry served on /metrics
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// Uptime returns how long the node has been running
func (n *Node) Uptime() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.startTime.IsZero() {
		return 0
	}
	return time.Since(n.startTime)
}
