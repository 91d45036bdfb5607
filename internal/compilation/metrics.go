package compilation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters a compiler updates. A nil *Metrics records
// nothing.
type Metrics struct {
	passesTotal      *prometheus.CounterVec
	passDuration     *prometheus.HistogramVec
	modulesBuilt     *prometheus.CounterVec
	modulesRestored  prometheus.Counter
	diagnosticsTotal *prometheus.CounterVec
	renderCache      *prometheus.CounterVec
}

// NewMetrics registers the compiler metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		passesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgraph_passes_total",
				Help: "Compilation passes by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		passDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsgraph_pass_duration_seconds",
				Help:    "Compilation pass latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		modulesBuilt: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgraph_modules_built_total",
				Help: "Modules built, by module type",
			},
			[]string{"type"},
		),
		modulesRestored: f.NewCounter(
			prometheus.CounterOpts{
				Name: "jsgraph_build_meta_restored_total",
				Help: "Modules whose build meta was restored after a failed rebuild",
			},
		),
		diagnosticsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgraph_diagnostics_total",
				Help: "Diagnostics reported, by severity and kind",
			},
			[]string{"severity", "kind"},
		),
		renderCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgraph_render_cache_total",
				Help: "Module render cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observePass(r *Result) {
	if m == nil {
		return
	}
	outcome := "ok"
	if r.HasErrors() {
		outcome = "error"
	}
	m.passesTotal.WithLabelValues(r.Kind.String(), outcome).Inc()
	m.passDuration.WithLabelValues(r.Kind.String()).Observe(r.Duration.Seconds())
	m.modulesRestored.Add(float64(len(r.Restored)))
	for _, d := range r.Diagnostics {
		m.diagnosticsTotal.WithLabelValues(d.Severity.String(), string(d.Kind)).Inc()
	}
}

func (m *Metrics) moduleBuilt(moduleType string) {
	if m == nil {
		return
	}
	m.modulesBuilt.WithLabelValues(moduleType).Inc()
}

func (m *Metrics) renderLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.renderCache.WithLabelValues("hit").Inc()
	} else {
		m.renderCache.WithLabelValues("miss").Inc()
	}
}
