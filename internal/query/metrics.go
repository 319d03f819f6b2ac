package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hippocampus_searches_total",
		Help: "Searches served, per collection.",
	}, []string{"collection"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hippocampus_search_duration_seconds",
		Help:    "End-to-end search latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})
)

func observeSearch(collectionID string, elapsed time.Duration) {
	searchesTotal.WithLabelValues(collectionID).Inc()
	searchDuration.WithLabelValues(collectionID).Observe(elapsed.Seconds())
}
