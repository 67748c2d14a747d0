package kb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/kbquery/internal/compiler"
)

const metricsNamespace = "kbquery"

// Metrics records query activity. A nil *Metrics records nothing.
type Metrics struct {
	compiled     *prometheus.CounterVec
	executed     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	rows         *prometheus.HistogramVec
	historyItems prometheus.Counter
}

// NewMetrics registers the query metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to stay isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: mode (search, history), result (ok, compile_error, unsupported)
		compiled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compiler",
			Name:      "queries_total",
			Help:      "Queries compiled by mode and result",
		}, []string{"mode", "result"}),

		// Labels: mode, result (ok, invalid_args, execution_error)
		executed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "queries_total",
			Help:      "Query executions by mode and result",
		}, []string{"mode", "result"}),

		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "duration_seconds",
			Help:      "Query execution latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"mode"}),

		rows: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "results",
			Help:      "Results returned per execution",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"mode"}),

		historyItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "items_total",
			Help:      "Items with a non-empty history returned by history queries",
		}),
	}
}

func (m *Metrics) recordCompile(mode compiler.Mode, err error) {
	if m == nil {
		return
	}
	m.compiled.WithLabelValues(string(mode), resultLabel(err)).Inc()
}

func (m *Metrics) recordExecution(mode compiler.Mode, start time.Time, results int, err error) {
	if m == nil {
		return
	}
	m.executed.WithLabelValues(string(mode), resultLabel(err)).Inc()
	if err != nil {
		return
	}
	m.duration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	m.rows.WithLabelValues(string(mode)).Observe(float64(results))
	if mode == compiler.ModeHistory {
		m.historyItems.Add(float64(results))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsCompileError(err):
		return "compile_error"
	case IsUnsupported(err):
		return "unsupported"
	case IsInvalidArgs(err):
		return "invalid_args"
	default:
		return "execution_error"
	}
}
