package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentra_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	SalesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentra_sales_created_total",
			Help: "Total number of sales created",
		},
	)

	PurchasesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentra_purchases_created_total",
			Help: "Total number of purchases created",
		},
	)

	StockRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentra_stock_rejections_total",
			Help: "Total number of operations rejected for insufficient stock",
		},
	)
)

// TrackRequest records one HTTP request observation.
func TrackRequest(method, path, status string, start time.Time) {
	duration := time.Since(start).Seconds()
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
}
