// Package metrics exposes editor, linker and registry activity as Prometheus series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lootforge/internal/edit"
	"lootforge/internal/editor"
	"lootforge/internal/registry"
)

const namespace = "lootforge"

// Collector implements editor.Observer and linker.Observer.
type Collector struct {
	edits          *prometheus.CounterVec
	views          *prometheus.CounterVec
	rebuilds       prometheus.Histogram
	links          prometheus.Gauge
	parseFailures  prometheus.Counter
	sessionOps     *prometheus.CounterVec
	exportsWritten prometheus.Counter
}

// New registers the collector's series on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Collector{
		// Labels: action (apply, undo, redo), op (operation kind)
		edits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "edits_total",
			Help:      "Edit operations applied, undone or redone",
		}, []string{"action", "op"}),
		// Labels: result (hit, miss)
		views: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "view_requests_total",
			Help:      "Edited view requests by cache result",
		}, []string{"result"}),
		rebuilds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "linker",
			Name:      "rebuild_duration_seconds",
			Help:      "Time to recompute the structure link index",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		links: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "linker",
			Name:      "links",
			Help:      "Links in the currently served index",
		}),
		parseFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "parse_failures_total",
			Help:      "Loot table documents that failed to parse",
		}),
		// Labels: op (save, load), status (ok, error)
		sessionOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session save and load attempts by status",
		}, []string{"op", "status"}),
		exportsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "documents_total",
			Help:      "Documents written by exports",
		}),
	}
}

func (c *Collector) ObserveEdit(action editor.Action, kind edit.Kind) {
	if c == nil {
		return
	}
	c.edits.WithLabelValues(string(action), string(kind)).Inc()
}

func (c *Collector) ObserveView(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.views.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveRebuild(d time.Duration, links int) {
	if c == nil {
		return
	}
	c.rebuilds.Observe(d.Seconds())
	c.links.Set(float64(links))
}

func (c *Collector) ParseFailed() {
	if c != nil {
		c.parseFailures.Inc()
	}
}

func (c *Collector) ObserveSession(op string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.sessionOps.WithLabelValues(op, status).Inc()
}

func (c *Collector) ExportedDocuments(n int) {
	if c != nil && n > 0 {
		c.exportsWritten.Add(float64(n))
	}
}

// RegisterCache publishes the cache counters of reg as CounterFuncs read on scrape.
func RegisterCache(reg prometheus.Registerer, cache *registry.CachedRegistry) {
	if reg == nil || cache == nil {
		return
	}
	f := promauto.With(reg)
	counter := func(name, help string, read func(registry.MetricsSnapshot) uint64) {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry_cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(cache.Metrics())) })
	}
	counter("raw_hits_total", "Raw document reads served from cache", func(m registry.MetricsSnapshot) uint64 { return m.RawHits })
	counter("raw_misses_total", "Raw document reads that went to the origin", func(m registry.MetricsSnapshot) uint64 { return m.RawMisses })
	counter("list_hits_total", "Id listings served from cache", func(m registry.MetricsSnapshot) uint64 { return m.ListHits })
	counter("list_misses_total", "Id listings that went to the origin", func(m registry.MetricsSnapshot) uint64 { return m.ListMisses })
	counter("origin_reads_total", "Reads issued against the origin registry", func(m registry.MetricsSnapshot) uint64 { return m.OriginReads })
	counter("absent_total", "Reads for documents the origin does not have", func(m registry.MetricsSnapshot) uint64 { return m.Absent })
	counter("evictions_total", "Raw documents evicted from cache", func(m registry.MetricsSnapshot) uint64 { return m.Evictions })
}
