package reranker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rerankSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "reranker",
		Name:      "skipped_total",
		Help:      "Queries served in ANN order because reranking failed open.",
	}, []string{"reason"})

	rerankDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "memoryd",
		Subsystem: "reranker",
		Name:      "duration_seconds",
		Help:      "Wall time of the inner reranking call, including tripped calls.",
		Buckets:   []float64{.01, .025, .05, .1, .15, .25, .5, 1},
	})
)
