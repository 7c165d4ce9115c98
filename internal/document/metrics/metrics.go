package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document module: transition volume
// per target state, synchronization latency, and write counters.
type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	VersionsCloned   prometheus.Counter
	RowsSaved        prometheus.Counter
}

// New creates a Metrics instance with all document module metrics registered.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sigedoc_document_transitions_total",
			Help: "Total confirmed document status transitions by target state",
		}, []string{"target"}),
		FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigedoc_fetch_all_duration_seconds",
			Help:    "Duration of full document/KPI collection synchronization",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		VersionsCloned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigedoc_document_versions_cloned_total",
			Help: "Total new document versions created by cloning",
		}),
		RowsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigedoc_document_row_saves_total",
			Help: "Total whole-document tabular row saves",
		}),
	}
}

// IncrementTransition records a confirmed transition into the target state.
func (m *Metrics) IncrementTransition(target string) {
	m.TransitionsTotal.WithLabelValues(target).Inc()
}

// ObserveFetch records the duration of a FetchAll run.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveFetch(start time.Time) {
	m.FetchDuration.Observe(time.Since(start).Seconds())
}

// IncrementVersionCloned records a successful version clone.
func (m *Metrics) IncrementVersionCloned() {
	m.VersionsCloned.Inc()
}

// IncrementRowsSaved records a successful tabular save.
func (m *Metrics) IncrementRowsSaved() {
	m.RowsSaved.Inc()
}
