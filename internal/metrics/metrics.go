// Package metrics holds the Prometheus collectors shared by the worker and the config API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "jobinput"

const (
	OutcomeSuccess   = "success"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeTransient = "error"
)

var (
	JobInputsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "job_inputs_generated_total",
			Namespace: Namespace,
			Help:      "Job input generation attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	GenerationLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "generation_latency_seconds",
			Namespace: Namespace,
			Buckets:   prometheus.DefBuckets,
			Help:      "The latency of job input generation in seconds.",
		},
		[]string{"operation"},
	)

	AttemptSyncConfigSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "attempt_sync_config_saves_total",
			Namespace: Namespace,
			Help:      "Attempt sync config writes by outcome.",
		},
		[]string{"outcome"},
	)

	HttpRequestLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "http_request_latency_seconds",
			Namespace: Namespace,
			Buckets:   prometheus.DefBuckets,
			Help:      "The latency of http operations in seconds.",
		},
		[]string{"server", "method", "route", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware records request latency labelled with the matched chi route
// pattern, so path parameters do not explode label cardinality.
func HTTPMiddleware(server string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			HttpRequestLatencySeconds.
				WithLabelValues(server, r.Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
