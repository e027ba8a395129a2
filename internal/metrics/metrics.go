// Package metrics exposes the prometheus instruments shared by the HTTP
// middleware and the domain services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mangaka"

var (
	// RequestsTotal counts completed HTTP requests.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Completed HTTP requests.",
	}, []string{"method", "route", "status"})

	// RequestDuration observes request latency per route.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// GenerationsTotal counts asset generation attempts by kind and outcome.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "attempts_total",
		Help:      "Asset generation attempts.",
	}, []string{"kind", "outcome"})

	// QuotaRejections counts requests refused for lack of credits.
	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "quota",
		Name:      "rejections_total",
		Help:      "Generation requests refused at the quota gate.",
	})

	// SavesTotal counts unified save-all writes.
	SavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "saves",
		Name:      "total",
		Help:      "Unified project saves.",
	})

	// DraftsReaped counts drafts removed by the janitor.
	DraftsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "drafts",
		Name:      "reaped_total",
		Help:      "Stale drafts removed by the cleanup job.",
	})
)

// ObserveRequest records one completed request.
func ObserveRequest(method, route string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
