package h5export

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dataset kinds used as the "kind" label of the datasets counter.
const (
	kindData       = "data"
	kindTimestamps = "timestamps"
	kindTime       = "time"
)

// Metrics contains Prometheus metrics for exports. A nil *Metrics records
// nothing.
type Metrics struct {
	headersExported prometheus.Counter
	datasetsWritten *prometheus.CounterVec
	samplesWritten  prometheus.Counter
	exportErrors    prometheus.Counter
	exportDuration  prometheus.Histogram
}

// NewMetrics creates the export collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		headersExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "h5export_headers_exported_total",
			Help: "Total number of run headers written to HDF5 files",
		}),
		datasetsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "h5export_datasets_written_total",
			Help: "Total number of datasets written, by kind",
		}, []string{"kind"}),
		samplesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "h5export_samples_written_total",
			Help: "Total number of field samples written to data datasets",
		}),
		exportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "h5export_export_errors_total",
			Help: "Total number of exports that returned an error",
		}),
		exportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "h5export_export_duration_seconds",
			Help:    "Duration of Export calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) headerDone() {
	if m == nil {
		return
	}
	m.headersExported.Inc()
}

func (m *Metrics) datasetDone(kind string, samples int) {
	if m == nil {
		return
	}
	m.datasetsWritten.WithLabelValues(kind).Inc()
	if kind == kindData {
		m.samplesWritten.Add(float64(samples))
	}
}

func (m *Metrics) exportDone(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.exportDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.exportErrors.Inc()
	}
}
