// Package metrics provides Prometheus metrics for a tagprobe run. Metrics
// live in a private registry and are exported to a node_exporter textfile
// at the end of a batch run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all run metrics.
type Collector struct {
	reg *prometheus.Registry

	// Fill metrics
	VariantsFilled  *prometheus.CounterVec
	VariantsSkipped *prometheus.CounterVec
	EventsScanned   *prometheus.CounterVec
	EventsSelected  *prometheus.CounterVec
	FillDuration    *prometheus.HistogramVec
	SourceFailures  *prometheus.CounterVec
	WorkersInFlight prometheus.Gauge

	// Output metrics
	MergedHistograms *prometheus.GaugeVec
	CardsWritten     prometheus.Counter

	// Summary metrics
	FitResults       *prometheus.CounterVec
	CombinerFailures prometheus.Counter
}

// New creates a collector with all metrics registered in a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		reg: reg,

		VariantsFilled: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "variants_filled_total",
				Help:      "Histogram variants filled",
			},
			[]string{"process", "category"},
		),
		VariantsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "variants_skipped_total",
				Help:      "Histogram variants skipped because of a missing table or field",
			},
			[]string{"process", "reason"},
		),
		EventsScanned: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "events_scanned_total",
				Help:      "Event rows read from source tables",
			},
			[]string{"process"},
		),
		EventsSelected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "events_selected_total",
				Help:      "Event rows passing the selection with non-zero weight",
			},
			[]string{"process"},
		),
		FillDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tagprobe",
				Name:      "process_fill_duration_seconds",
				Help:      "Time spent filling all variants of one process",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"process"},
		),
		SourceFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "source_failures_total",
				Help:      "Event sources that could not be opened",
			},
			[]string{"source"},
		),
		WorkersInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tagprobe",
				Name:      "workers_in_flight",
				Help:      "Process workers currently filling",
			},
		),

		MergedHistograms: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tagprobe",
				Name:      "merged_histograms",
				Help:      "Histograms in the merged category store",
			},
			[]string{"category"},
		),
		CardsWritten: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "cards_written_total",
				Help:      "Datacards written",
			},
		),

		FitResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "fit_results_total",
				Help:      "Fit result files read by the summary, by outcome",
			},
			[]string{"outcome"},
		),
		CombinerFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tagprobe",
				Name:      "combiner_failures_total",
				Help:      "Impact combinations rejected as degenerate",
			},
		),
	}
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// WriteToTextfile writes the metrics in the text exposition format. An
// empty path is a no-op.
func (c *Collector) WriteToTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.reg)
}
