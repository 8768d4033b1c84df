// Package metrics exposes Prometheus instruments for update cycles and
// thread publication.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results used as the "result" label of CyclesTotal.
const (
	ResultPublished = "published"
	ResultNoUpdate  = "no_update"
	ResultFailed    = "failed"
	ResultDryRun    = "dry_run"
)

var (
	// CyclesTotal counts update cycles by result
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailythread_cycles_total",
			Help: "Total update cycles by result",
		},
		[]string{"result"},
	)

	// CycleDuration tracks how long an update cycle takes in seconds
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dailythread_cycle_duration_seconds",
			Help:    "Update cycle duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	PostsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dailythread_posts_published_total",
			Help: "Total posts that went live",
		},
	)

	// PublicationFailures counts threads that stopped before their last post
	PublicationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dailythread_publication_failures_total",
			Help: "Total thread publications aborted by a failed post",
		},
	)

	// LastPublishedDataTimestamp is the dataset date of the last published thread
	LastPublishedDataTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dailythread_last_published_data_timestamp_seconds",
			Help: "Unix time of the dataset day last published",
		},
	)

	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dailythread_consecutive_failures",
			Help: "Number of consecutive failed update cycles",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
