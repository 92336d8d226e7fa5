// Package metrics exposes the service's prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist"
)

const (
	VerdictSpam  = "spam"
	VerdictClean = "clean"
	VerdictError = "error"
)

// Metrics groups the collectors updated by the API and the blocklist loader.
type Metrics struct {
	registry *prometheus.Registry

	checks        *prometheus.CounterVec
	checkDuration prometheus.Histogram
	fetches       prometheus.Counter
	links         prometheus.Histogram
	rules         prometheus.Gauge
}

// Options configures New. RepoStats, when set, is sampled on every scrape.
type Options struct {
	Namespace string
	RepoStats func() blocklist.RepoStats
	// RuntimeCollectors adds the Go and process collectors.
	RuntimeCollectors bool
}

// New creates and registers all collectors.
func New(opts Options) (*Metrics, error) {
	if opts.Namespace == "" {
		opts.Namespace = "rr_spam"
	}
	ns := opts.Namespace

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "checks_total",
			Help:      "Content checks by verdict.",
		}, []string{"verdict"}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "check_duration_seconds",
			Help:      "Wall time of a content check.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "fetches_total",
			Help:      "HTTP fetches issued while following links.",
		}),
		links: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "links_per_check",
			Help:      "Links extracted from submitted content.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "blocklist_rules",
			Help:      "Rules loaded into the block-list index.",
		}),
	}

	cs := []prometheus.Collector{m.checks, m.checkDuration, m.fetches, m.links, m.rules}
	if opts.RepoStats != nil {
		cs = append(cs, repoCollectors(ns, opts.RepoStats)...)
	}
	if opts.RuntimeCollectors {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func repoCollectors(ns string, stats func() blocklist.RepoStats) []prometheus.Collector {
	counter := func(name, help string, pick func(blocklist.RepoStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "blocklist",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stats())) })
	}
	gauge := func(name, help string, pick func(blocklist.RepoStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "blocklist",
			Name:      name,
			Help:      help,
		}, func() float64 { return pick(stats()) })
	}
	return []prometheus.Collector{
		counter("cache_hits_total", "Decision cache hits.", func(s blocklist.RepoStats) uint64 { return s.Hits }),
		counter("cache_misses_total", "Decision cache misses.", func(s blocklist.RepoStats) uint64 { return s.Misses }),
		counter("cache_evictions_total", "Decision cache evictions.", func(s blocklist.RepoStats) uint64 { return s.Evictions }),
		gauge("cache_entries", "Decisions currently cached.", func(s blocklist.RepoStats) float64 { return float64(s.CacheSize) }),
		gauge("version", "Version of the loaded block-list.", func(s blocklist.RepoStats) float64 { return float64(s.Version) }),
		gauge("exact_rules", "Exact-match rules in the loaded block-list.", func(s blocklist.RepoStats) float64 { return float64(s.ExactRules) }),
		gauge("suffix_rules", "Suffix rules in the loaded block-list.", func(s blocklist.RepoStats) float64 { return float64(s.SuffixRules) }),
	}
}

// ObserveCheck records one finished check.
func (m *Metrics) ObserveCheck(v domain.Verdict, err error, elapsed time.Duration) {
	verdict := VerdictClean
	switch {
	case err != nil:
		verdict = VerdictError
	case v.Spam:
		verdict = VerdictSpam
	}
	m.checks.WithLabelValues(verdict).Inc()
	m.checkDuration.Observe(elapsed.Seconds())
	m.fetches.Add(float64(v.Fetches))
	m.links.Observe(float64(v.Links))
}

// ObserveRejected counts a request refused before any classification ran.
func (m *Metrics) ObserveRejected() {
	m.checks.WithLabelValues(VerdictError).Inc()
}

// SetBlocklistRules records the size of the last loaded rule set.
func (m *Metrics) SetBlocklistRules(n int) {
	m.rules.Set(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
