package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("par-delta-dashboard/rag")

var (
	askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_ask_total",
			Help: "Questions answered, by answer status.",
		},
		[]string{"status"},
	)

	askDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_ask_duration_seconds",
			Help:    "Time to answer one question.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	rebuildTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_index_rebuild_total",
			Help: "Index rebuilds, by provider and result.",
		},
		[]string{"provider", "result"},
	)

	rebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_index_rebuild_duration_seconds",
			Help:    "Time to fetch, split and embed the catalogue.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	indexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rag_index_chunks",
			Help: "Chunks in the index currently served.",
		},
	)

	providerFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_provider_fallback_total",
			Help: "Switches from the primary to the fallback embedding provider.",
		},
	)

	tableFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_table_fetch_failures_total",
			Help: "Failed table reads, by table.",
		},
		[]string{"table"},
	)
)

func init() {
	prometheus.MustRegister(
		askTotal,
		askDuration,
		rebuildTotal,
		rebuildDuration,
		indexChunks,
		providerFallbackTotal,
		tableFetchFailures,
	)
}
