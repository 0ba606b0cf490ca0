/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package prometheus exposes read-only PromQL capabilities.
package prometheus

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/tranductrinh/kube-medic/internal/capability"
	"github.com/tranductrinh/kube-medic/internal/prediction"
)

var log = logf.Log.WithName("prometheus")

var (
	cacheHits = prom.NewCounter(prom.CounterOpts{
		Name: "kubemedic_prometheus_cache_hits_total",
		Help: "PromQL results served from cache",
	})
	cacheMisses = prom.NewCounter(prom.CounterOpts{
		Name: "kubemedic_prometheus_cache_misses_total",
		Help: "PromQL lookups not found in cache",
	})
)

func init() {
	metrics.Registry.MustRegister(cacheHits, cacheMisses)
}

// Config configures the Prometheus client.
type Config struct {
	URL       string        `json:"url" yaml:"url"`
	Username  string        `json:"username,omitempty" yaml:"username"`
	Password  string        `json:"-" yaml:"password"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	CacheSize int           `json:"cacheSize" yaml:"cacheSize"`
	CacheTTL  time.Duration `json:"cacheTTL" yaml:"cacheTTL"`
	MaxSeries int           `json:"maxSeries" yaml:"maxSeries"`
}

// DefaultConfig returns the defaults used when fields are unset.
func DefaultConfig() Config {
	return Config{
		Timeout:   10 * time.Second,
		CacheSize: 100,
		CacheTTL:  60 * time.Second,
		MaxSeries: 20,
	}
}

// Client runs PromQL queries and renders results as text for the model.
type Client struct {
	api       promv1.API
	cache     *Cache[string]
	timeout   time.Duration
	maxSeries int
	nowFunc   func() time.Time
}

// New creates a Client for cfg.URL.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("prometheus URL is required")
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxSeries <= 0 {
		cfg.MaxSeries = def.MaxSeries
	}

	var rt http.RoundTripper = api.DefaultRoundTripper
	if cfg.Username != "" {
		rt = basicAuthRoundTripper{username: cfg.Username, password: cfg.Password, next: rt}
	}
	client, err := api.NewClient(api.Config{Address: cfg.URL, RoundTripper: rt})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return &Client{
		api:       promv1.NewAPI(client),
		cache:     NewCache[string](cfg.CacheSize, cfg.CacheTTL),
		timeout:   cfg.Timeout,
		maxSeries: cfg.MaxSeries,
		nowFunc:   time.Now,
	}, nil
}

type basicAuthRoundTripper struct {
	username, password string
	next               http.RoundTripper
}

func (b basicAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(b.username, b.password)
	return b.next.RoundTrip(req)
}

// ClearCache drops cached results and returns how many there were.
func (c *Client) ClearCache() int {
	return c.cache.Clear()
}

// Query runs an instant query.
func (c *Client) Query(ctx context.Context, query string) (string, error) {
	query = sanitizeQuery(query)
	if err := validateQuery(query); err != nil {
		return "", err
	}
	key := "instant:" + query
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	value, warnings, err := c.api.Query(ctx, query, c.nowFunc(), promv1.WithTimeout(c.timeout))
	if err != nil {
		return "", fmt.Errorf("prometheus query failed: %w", err)
	}
	log.V(1).Info("Instant query", "query", query, "type", value.Type().String())

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", query)
	c.renderValue(&b, value)
	renderWarnings(&b, warnings)
	out := b.String()
	c.cache.Put(key, out)
	return out, nil
}

// QueryRange runs a range query and summarizes each series.
func (c *Client) QueryRange(ctx context.Context, query, start, end, step string) (string, error) {
	query = sanitizeQuery(query)
	if err := validateQuery(query); err != nil {
		return "", err
	}
	now := c.nowFunc()
	startT, err := parseTime(start, now)
	if err != nil {
		return "", err
	}
	endT, err := parseTime(end, now)
	if err != nil {
		return "", err
	}
	if !startT.Before(endT) {
		return "", invalid("start %s must be before end %s", startT.Format(time.RFC3339), endT.Format(time.RFC3339))
	}
	stepD, err := parseStep(step)
	if err != nil {
		return "", err
	}

	key := strings.Join([]string{"range", query, start, end, step}, "\x00")
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	r := promv1.Range{Start: startT, End: endT, Step: stepD}
	value, warnings, err := c.api.QueryRange(ctx, query, r, promv1.WithTimeout(c.timeout))
	if err != nil {
		return "", fmt.Errorf("prometheus range query failed: %w", err)
	}
	log.V(1).Info("Range query", "query", query, "start", startT, "end", endT, "step", stepD)

	var b strings.Builder
	fmt.Fprintf(&b, "Range Query: %s\n", query)
	fmt.Fprintf(&b, "Time Range: %s to %s\n", startT.UTC().Format(time.RFC3339), endT.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Step: %s\n", stepD)
	c.renderValue(&b, value)
	renderWarnings(&b, warnings)
	out := b.String()
	c.cache.Put(key, out)
	return out, nil
}

func (c *Client) renderValue(b *strings.Builder, value model.Value) {
	switch v := value.(type) {
	case model.Vector:
		if len(v) == 0 {
			b.WriteString("No data returned for this query.\n")
			return
		}
		fmt.Fprintf(b, "Results (%d series):\n", len(v))
		for _, s := range v[:min(len(v), c.maxSeries)] {
			fmt.Fprintf(b, "  %s: %s\n", s.Metric, s.Value)
		}
		moreSeries(b, len(v), c.maxSeries)
	case model.Matrix:
		if len(v) == 0 {
			b.WriteString("No data returned for this query.\n")
			return
		}
		fmt.Fprintf(b, "Results (%d series):\n", len(v))
		for _, s := range v[:min(len(v), c.maxSeries)] {
			fmt.Fprintf(b, "  %s:\n", s.Metric)
			renderStream(b, s.Values)
		}
		moreSeries(b, len(v), c.maxSeries)
	case *model.Scalar:
		fmt.Fprintf(b, "Scalar: %s\n", v.Value)
	case *model.String:
		fmt.Fprintf(b, "String: %s\n", v.Value)
	default:
		fmt.Fprintf(b, "Result: %v\n", value)
	}
}

func renderStream(b *strings.Builder, values []model.SamplePair) {
	fmt.Fprintf(b, "    Samples: %d\n", len(values))
	if len(values) == 0 {
		return
	}
	minV, maxV, sum, n := math.Inf(1), math.Inf(-1), 0.0, 0
	for _, p := range values {
		f := float64(p.Value)
		if math.IsNaN(f) {
			continue
		}
		minV, maxV = math.Min(minV, f), math.Max(maxV, f)
		sum += f
		n++
	}
	last := values[len(values)-1]
	fmt.Fprintf(b, "    Last: %s = %s\n", last.Timestamp.Time().UTC().Format(time.RFC3339), last.Value)
	if n > 0 {
		fmt.Fprintf(b, "    Min: %.3f, Max: %.3f, Avg: %.3f\n", minV, maxV, sum/float64(n))
	}
	if trend := prediction.Analyze(points(values)); trend != nil {
		fmt.Fprintf(b, "    Trend: %s\n", trend)
	}
}

func points(values []model.SamplePair) []prediction.Point {
	out := make([]prediction.Point, len(values))
	for i, p := range values {
		out[i] = prediction.Point{Time: p.Timestamp.Time(), Value: float64(p.Value)}
	}
	return out
}

func moreSeries(b *strings.Builder, total, shown int) {
	if total > shown {
		fmt.Fprintf(b, "  ... and %d more series\n", total-shown)
	}
}

func renderWarnings(b *strings.Builder, warnings promv1.Warnings) {
	for _, w := range warnings {
		fmt.Fprintf(b, "Warning: %s\n", w)
	}
}

// Capabilities returns the PromQL capabilities backed by c.
func (c *Client) Capabilities() []capability.Descriptor {
	return []capability.Descriptor{
		{
			Name: "prometheus_query",
			Description: "Run an instant PromQL query. Examples: up{job=\"kubernetes-pods\"}, " +
				"rate(container_cpu_usage_seconds_total[5m]), kube_pod_container_status_restarts_total",
			Params: []capability.Param{
				{Name: "query", Type: capability.String, Required: true, Description: "PromQL expression"},
			},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return c.Query(ctx, args.String("query"))
			},
		},
		{
			Name:        "prometheus_query_range",
			Description: "Run a PromQL range query for trend analysis. Each series is summarized as sample count, last value, min, max and average.",
			Params: []capability.Param{
				{Name: "query", Type: capability.String, Required: true, Description: "PromQL expression"},
				{Name: "start", Type: capability.String, Default: "1h", Description: "Start time: relative (30m, 1h, 2d) or RFC 3339"},
				{Name: "end", Type: capability.String, Default: "now", Description: "End time: now or RFC 3339"},
				{Name: "step", Type: capability.String, Default: "1m", Description: "Resolution step such as 15s, 1m, 5m"},
			},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return c.QueryRange(ctx, args.String("query"), args.String("start"), args.String("end"), args.String("step"))
			},
		},
	}
}
