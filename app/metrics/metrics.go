package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_news_runs_total",
			Help: "Total number of ingest runs.",
		},
		[]string{"source", "status"}, // status: succeeded, failed, skipped
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anime_news_run_duration_seconds",
			Help:    "Duration of ingest runs.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	ArticlesAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_news_articles_added_total",
			Help: "Articles appended to the daily store.",
		},
		[]string{"source"},
	)

	ArticlesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_news_articles_skipped_total",
			Help: "Entries not stored, by reason.",
		},
		[]string{"source", "reason"}, // reason: duplicate, filtered, failed
	)

	ImagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_news_images_total",
			Help: "Image derivations by outcome.",
		},
		[]string{"outcome"}, // outcome: created, reused, fallback
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_news_deliveries_total",
			Help: "Notification deliveries by kind and result.",
		},
		[]string{"kind", "result"},
	)

	IndexArticles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anime_news_index_articles",
			Help: "Total articles in the global index after the last append.",
		},
	)
)

func Result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_news_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anime_news_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
