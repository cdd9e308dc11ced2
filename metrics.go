package burrow

import "github.com/prometheus/client_golang/prometheus"

// Metrics aggregates the environment's operational counters. All counters
// are plain Prometheus collectors; Collectors returns them for registration
// with the embedding process's registry.
type Metrics struct {
	// CursorCouples counts cursor transitions into the coupled state.
	CursorCouples prometheus.Counter

	// CursorUncouples counts cursor transitions into the uncoupled state.
	CursorUncouples prometheus.Counter

	// DupeCacheHits counts duplicate reads served from the cursor's
	// one-entry duplicate cache.
	DupeCacheHits prometheus.Counter

	// DupeCacheMisses counts duplicate reads that had to consult the
	// blob store.
	DupeCacheMisses prometheus.Counter

	// PagesFetched counts pages returned by the pager, resident or
	// reloaded.
	PagesFetched prometheus.Counter

	// PagesEvicted counts pages pushed out of the resident set.
	PagesEvicted prometheus.Counter

	// PluginsRegistered tracks the number of registered plugins.
	PluginsRegistered prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CursorCouples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burrow_cursor_couples_total",
			Help: "Cursor transitions into the coupled state.",
		}),
		CursorUncouples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burrow_cursor_uncouples_total",
			Help: "Cursor transitions into the uncoupled state.",
		}),
		DupeCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burrow_dupe_cache_hits_total",
			Help: "Duplicate reads served from the cursor cache.",
		}),
		DupeCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burrow_dupe_cache_misses_total",
			Help: "Duplicate reads that consulted the blob store.",
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burrow_pages_fetched_total",
			Help: "Pages returned by the pager.",
		}),
		PagesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burrow_pages_evicted_total",
			Help: "Pages evicted from the resident set.",
		}),
		PluginsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burrow_plugins_registered",
			Help: "Registered query plugins.",
		}),
	}
}

// Collectors returns every collector owned by the environment.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CursorCouples,
		m.CursorUncouples,
		m.DupeCacheHits,
		m.DupeCacheMisses,
		m.PagesFetched,
		m.PagesEvicted,
		m.PluginsRegistered,
	}
}
