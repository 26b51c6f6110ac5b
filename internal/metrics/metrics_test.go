package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads a counter or gauge sample from reg.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestObserveFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch(20*time.Millisecond, nil, 12, 1, 0)
	m.ObserveFetch(5*time.Millisecond, errors.New("boom"), 0, 0, 0)

	assert.Equal(t, 1.0, value(t, reg, "storecal_calendar_fetch_total", map[string]string{"status": "ok"}))
	assert.Equal(t, 1.0, value(t, reg, "storecal_calendar_fetch_total", map[string]string{"status": "error"}))
	assert.Equal(t, 12.0, value(t, reg, "storecal_recurrence_occurrences_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "storecal_recurrence_truncated_events_total", nil))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch(time.Second, nil, 1, 0, 0)
	m.ObserveFeedImport("feed", nil)
	m.RecordDBPoolStats(sql.DBStats{})

	h := m.Middleware("x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestMiddlewareCountsByRouteAndCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	h := m.Middleware("events", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))

	assert.Equal(t, 1.0, value(t, reg, "storecal_http_requests_total", map[string]string{"route": "events", "code": "404"}))
	assert.Equal(t, 0.0, value(t, reg, "storecal_http_requests_in_flight", nil))
}

func TestRecordDBPoolStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordDBPoolStats(sql.DBStats{OpenConnections: 4, InUse: 1, Idle: 3})
	assert.Equal(t, 3.0, value(t, reg, "storecal_db_connection_pool", map[string]string{"stat": "idle"}))
}
