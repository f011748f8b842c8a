// ABOUTME: Prometheus collectors for the gateway
// ABOUTME: Registered on the default registry and served by promhttp

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reply modes.
const (
	ModeBatch  = "batch"
	ModeStream = "stream"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	// Conversation metrics
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_replies_total",
			Help: "Assistant replies produced, by strategy and delivery mode",
		},
		[]string{"strategy", "mode"},
	)

	ReplyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_reply_failures_total",
			Help: "Reply attempts that ended without a persisted message",
		},
		[]string{"strategy", "mode"},
	)

	// Streaming metrics
	StreamChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_stream_chunks_total",
			Help: "Chunk records written to streaming responses",
		},
	)

	StreamFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_stream_failures_total",
			Help: "Streaming responses that ended with an error record",
		},
	)
)
