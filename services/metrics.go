package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_chat_requests_total",
		Help: "Chat exchanges by persona and outcome.",
	}, []string{"persona", "outcome"})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docchat_generation_duration_seconds",
		Help:    "Latency of the completion call.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	indexQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docchat_index_query_duration_seconds",
		Help:    "Latency of similarity queries including query embedding.",
		Buckets: prometheus.DefBuckets,
	})

	indexedChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_indexed_chunks_total",
		Help: "Chunks written to the embedding index.",
	})

	uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_uploads_total",
		Help: "Document ingestions by result status.",
	}, []string{"status"})
)
