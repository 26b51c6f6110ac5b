// Package metrics holds the Prometheus collectors of the calendar service.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storecal"

type Metrics struct {
	FetchTotal       *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	Occurrences      prometheus.Counter
	TruncatedEvents  prometheus.Counter
	InvalidRules     prometheus.Counter
	FeedImports      *prometheus.CounterVec
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	DBConnPoolStats  *prometheus.GaugeVec
}

// New registers every collector on reg. Passing a fresh prometheus.Registry
// keeps tests independent of the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "fetch_total",
			Help:      "Window fetches by outcome.",
		}, []string{"status"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "fetch_duration_seconds",
			Help:      "Time to query, expand and annotate one window.",
			Buckets:   prometheus.DefBuckets,
		}),
		Occurrences: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recurrence",
			Name:      "occurrences_total",
			Help:      "Occurrences produced by expansion.",
		}),
		TruncatedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recurrence",
			Name:      "truncated_events_total",
			Help:      "Templates whose expansion hit the per-event cap.",
		}),
		InvalidRules: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recurrence",
			Name:      "invalid_rules_total",
			Help:      "Templates shown as single events because their rule failed validation.",
		}),
		FeedImports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feeds",
			Name:      "imports_total",
			Help:      "Holiday feed import runs by feed and outcome.",
		}, []string{"feed", "status"}),
		RequestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of requests",
		}, []string{"route", "code"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of requests currently being processed",
		}),
		DBConnPoolStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connection_pool",
			Help:      "Database connection pool statistics",
		}, []string{"stat"}),
	}
}

// ObserveFetch records one window fetch.
func (m *Metrics) ObserveFetch(d time.Duration, err error, occurrences, truncated, invalid int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.FetchTotal.WithLabelValues(status).Inc()
	m.FetchDuration.Observe(d.Seconds())
	m.Occurrences.Add(float64(occurrences))
	m.TruncatedEvents.Add(float64(truncated))
	m.InvalidRules.Add(float64(invalid))
}

func (m *Metrics) ObserveFeedImport(feed string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.FeedImports.WithLabelValues(feed, status).Inc()
}

// RecordDBPoolStats copies database/sql pool statistics into gauges.
func (m *Metrics) RecordDBPoolStats(s sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(s.OpenConnections))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(s.InUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(s.Idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(s.WaitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(s.WaitDuration.Milliseconds()))
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts and times requests. route names the handler; it is passed
// in so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}
