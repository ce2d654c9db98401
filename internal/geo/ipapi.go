package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fail2ban-exporter/internal/util"

	"github.com/sirupsen/logrus"
)

const (
	DefaultURL       = "http://ip-api.com"
	DefaultBatchSize = 100
	MaxBatchSize     = 100
	DefaultTimeout   = 15 * time.Second
)

// SystemFields are always requested and stripped from HostRecord.Fields
var SystemFields = []string{"status", "message", "query"}

// DefaultFields are the location fields requested for every address
var DefaultFields = []string{
	"country", "countryCode", "region",
	"regionName", "city", "zip", "lat", "lon", "timezone",
	"isp", "org", "as", "mobile", "proxy", "hosting",
}

// Config holds the settings of the ip-api client
type Config struct {
	URL       string
	BatchSize int
	UserAgent string
	Timeout   time.Duration
	Fields    []string
}

// IPAPI queries the ip-api.com batch endpoint
type IPAPI struct {
	config Config
	http   *http.Client
	log    logrus.FieldLogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIPAPI creates an ip-api client, filling unset config with defaults
func NewIPAPI(config Config, log logrus.FieldLogger) *IPAPI {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	config.URL = strings.TrimRight(config.URL, "/")
	if config.BatchSize <= 0 || config.BatchSize > MaxBatchSize {
		config.BatchSize = DefaultBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if len(config.Fields) == 0 {
		config.Fields = DefaultFields
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &IPAPI{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		log:    log,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

type batchEntry map[string]any

// Query looks up every address, batching requests. Failures are reported
// per address, never as an error.
func (c *IPAPI) Query(ctx context.Context, ips []string) []QueryResult {
	results := make([]QueryResult, 0, len(ips))
	valid := make([]string, 0, len(ips))
	seen := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		if _, err := util.IPVersion(ip); err != nil {
			results = append(results, failed(ip, err.Error()))
			continue
		}
		valid = append(valid, ip)
	}

	for start := 0; start < len(valid); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		entries, wait, err := c.queryBatch(ctx, batch)
		if err != nil {
			c.log.WithError(err).WithField("size", len(batch)).Warn("ip-api batch request failed")
			for _, ip := range batch {
				results = append(results, failed(ip, err.Error()))
			}
		} else {
			results = append(results, c.collect(batch, entries)...)
		}

		if wait > 0 && end < len(valid) {
			c.log.WithField("wait", wait).Info("ip-api rate limit reached, waiting")
			if err := c.sleep(ctx, wait); err != nil {
				for _, ip := range valid[end:] {
					results = append(results, failed(ip, err.Error()))
				}
				break
			}
		}
	}
	return results
}

// queryBatch posts one batch and returns the decoded entries and how long
// to wait before the next request
func (c *IPAPI) queryBatch(ctx context.Context, ips []string) ([]batchEntry, time.Duration, error) {
	body, err := json.Marshal(ips)
	if err != nil {
		return nil, 0, err
	}

	fields := append(append([]string{}, SystemFields...), c.config.Fields...)
	url := fmt.Sprintf("%s/batch?fields=%s", c.config.URL, strings.Join(fields, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("ip-api request: %w", err)
	}
	defer resp.Body.Close()

	wait := rateLimitWait(resp.Header)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, wait, fmt.Errorf("ip-api returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var entries []batchEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, wait, fmt.Errorf("decoding ip-api response: %w", err)
	}
	return entries, wait, nil
}

// collect matches entries to the batch so that every address gets a result.
// Entries are matched on the echoed query, falling back to the position in
// the batch when the echo differs from what was sent.
func (c *IPAPI) collect(batch []string, entries []batchEntry) []QueryResult {
	byIP := make(map[string]batchEntry, len(entries))
	for _, e := range entries {
		if q, ok := e["query"].(string); ok {
			byIP[q] = e
		}
	}

	fetchedAt := c.now()
	out := make([]QueryResult, 0, len(batch))
	for i, ip := range batch {
		e, ok := byIP[ip]
		if !ok && len(entries) == len(batch) {
			e, ok = entries[i], true
		}
		if !ok {
			out = append(out, failed(ip, "missing from ip-api response"))
			continue
		}
		if status, _ := e["status"].(string); status != "success" {
			msg, _ := e["message"].(string)
			if msg == "" {
				msg = "lookup failed"
			}
			out = append(out, failed(ip, msg))
			continue
		}

		fields := make(map[string]any, len(e))
		for k, v := range e {
			fields[k] = v
		}
		for _, k := range SystemFields {
			delete(fields, k)
		}
		out = append(out, QueryResult{
			IP:     ip,
			Status: StatusSuccess,
			Result: &HostRecord{IP: ip, FetchedAt: fetchedAt, Fields: fields},
		})
	}
	return out
}

// rateLimitWait reads X-Rl (requests left) and X-Ttl (seconds to reset)
func rateLimitWait(h http.Header) time.Duration {
	rl, err := strconv.Atoi(h.Get("X-Rl"))
	if err != nil || rl > 0 {
		return 0
	}
	ttl, err := strconv.Atoi(h.Get("X-Ttl"))
	if err != nil || ttl <= 0 {
		return 0
	}
	return time.Duration(ttl) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
