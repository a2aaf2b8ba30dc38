package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outboxPendingTimeout = 2 * time.Second
)

var (
	StorageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalake_storage_requests_total",
			Help: "Object storage calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	StorageRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datalake_storage_retries_total",
			Help: "Object storage writes retried after a client side failure.",
		},
	)
	PublishBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalake_publish_batches_total",
			Help: "Publish calls by kind and status.",
		},
		[]string{"kind", "status"},
	)
	PublishedObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalake_published_objects_total",
			Help: "Objects successfully written to the datalake by kind.",
		},
		[]string{"kind"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalake_http_requests_total",
			Help: "Total API requests by route and status.",
		},
		[]string{"route", "status"},
	)
	OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending",
			Help: "Pending outbox events not yet published.",
		},
	)
	OutboxPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Total outbox publish failures.",
		},
	)
	MetricsScrapeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "metrics_scrape_errors_total",
			Help: "Total metrics scrape errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StorageRequests,
		StorageRetries,
		PublishBatches,
		PublishedObjects,
		HTTPRequests,
		OutboxPending,
		OutboxPublishFailures,
		MetricsScrapeErrors,
	)
}

// Handler serves the default registry. db may be nil when the outbox is
// disabled, in which case outbox_pending is left untouched.
func Handler(db *sql.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			updateOutboxPending(db)
		}
		promhttp.Handler().ServeHTTP(w, r)
	})
}

func updateOutboxPending(db *sql.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), outboxPendingTimeout)
	defer cancel()

	var pending int64
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM outbox_events WHERE published_at IS NULL").Scan(&pending); err != nil {
		MetricsScrapeErrors.Inc()
		return
	}

	OutboxPending.Set(float64(pending))
}
