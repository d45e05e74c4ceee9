// Package metrics exposes the engine's operational counters on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tutorat",
		Subsystem: "retrieval",
		Name:      "search_duration_seconds",
		Help:      "Wall time of retrieval requests, cache hits included.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tutorat",
		Subsystem: "retrieval",
		Name:      "cache_hits_total",
		Help:      "Searches answered from the result cache.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tutorat",
		Subsystem: "retrieval",
		Name:      "cache_misses_total",
		Help:      "Searches that had to embed and query the store.",
	})

	DegradedSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutorat",
		Subsystem: "retrieval",
		Name:      "degraded_total",
		Help:      "Searches that returned no context because of a failure.",
	}, []string{"reason"})

	DocumentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutorat",
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Documents processed by the pipeline, by outcome.",
	}, []string{"outcome"})

	ChunksUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tutorat",
		Subsystem: "ingest",
		Name:      "chunks_upserted_total",
		Help:      "Points written to the vector store.",
	})
)
