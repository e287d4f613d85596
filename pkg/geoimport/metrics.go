package geoimport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of an Importer.
type Metrics struct {
	Imports        *prometheus.CounterVec
	DecodeDuration *prometheus.HistogramVec
	ProbeFailures  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	imports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoimport_imports_total",
		Help: "Imports by handler and outcome status",
	}, []string{"handler", "status"})

	decodeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoimport_decode_duration_seconds",
		Help:    "Time spent decoding a resource",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"handler"})

	probeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoimport_probe_failures_total",
		Help: "Probes that failed with an error or panic",
	}, []string{"handler"})

	reg.MustRegister(imports, decodeDuration, probeFailures)

	return &Metrics{
		Imports:        imports,
		DecodeDuration: decodeDuration,
		ProbeFailures:  probeFailures,
	}
}
