package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecal/internal/calendar"
	"storecal/internal/config"
	"storecal/internal/metrics"
	"storecal/internal/model"
	"storecal/internal/notify"
	"storecal/internal/store/memory"
)

var fixedNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	svc := calendar.NewService(memory.New(clock), notify.NewMemory(), calendar.Options{
		Location: time.UTC,
		Now:      clock,
		Metrics:  opts.Metrics,
	})
	opts.Now = clock
	srv := httptest.NewServer(NewServer(svc, opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func displayIDs(occ []model.Occurrence) []string {
	out := make([]string, 0, len(occ))
	for _, o := range occ {
		out = append(out, o.DisplayID)
	}
	return out
}

func TestRecurringEventLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp := do(t, srv, http.MethodPost, "/api/businesses/biz/events", calendar.EventForm{
		Title: "Fresh bread", Type: "business_event", Date: "2026-01-06", Time: "09:00",
		IsRecurring: true, Frequency: "weekly", Until: "2026-01-27",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.Event](t, resp)
	id := created.ID

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/events?start=2026-01-01&end=2026-02-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	window := decode[eventsResponse](t, resp)
	assert.Equal(t, []string{id, id + "_1", id + "_2", id + "_3"}, displayIDs(window.Occurrences))
	assert.Len(t, window.Days, 4)
	assert.Equal(t, "UTC", window.Timezone)

	resp = do(t, srv, http.MethodPatch, "/api/businesses/biz/events/"+id+"_2", map[string]any{"title": "Renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Renamed", decode[model.Event](t, resp).Title)

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/events?view=week&date=2026-01-13", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	week := decode[eventsResponse](t, resp)
	require.Len(t, week.Occurrences, 1)
	assert.Equal(t, id+"_1", week.Occurrences[0].DisplayID)
	assert.Equal(t, "Renamed", week.Occurrences[0].Title)
	assert.Equal(t, "#3B82F6", week.Occurrences[0].DisplayColor)
	assert.Empty(t, week.Days)

	resp = do(t, srv, http.MethodDelete, "/api/businesses/biz/events/"+id+"_1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/businesses/biz/events/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/businesses/biz/events/abc_xyz", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateEventValidationProblem(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp := do(t, srv, http.MethodPost, "/api/businesses/biz/events", map[string]any{"title": "", "type": "party", "date": "01/06/2026"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	p := decode[problem](t, resp)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Contains(t, p.Errors, "title")
	assert.Contains(t, p.Errors, "type")
	assert.Contains(t, p.Errors, "date")

	resp = do(t, srv, http.MethodPost, "/api/businesses/biz/events", `{"title":"x","bogus":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[problem](t, resp).Errors, "body")

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/events?view=year", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[problem](t, resp).Errors, "view")

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/events?start=2026-02-01&end=2026-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFilterUnknownReturnsEmpty(t *testing.T) {
	srv := newTestServer(t, Options{})
	resp := do(t, srv, http.MethodPost, "/api/businesses/biz/events", calendar.EventForm{Title: "Eid", Type: "cultural_event", Date: "2026-01-12", AllDay: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/events?view=week&date=2026-01-12&filter=cultural", nil)
	assert.Len(t, decode[eventsResponse](t, resp).Occurrences, 1)
	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/events?view=week&date=2026-01-12&filter=birthdays", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[eventsResponse](t, resp).Occurrences)
}

func TestBookEventCapacity(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp := do(t, srv, http.MethodPost, "/api/businesses/biz/events", calendar.EventForm{
		Title: "Butcher consult", Type: "appointment", Date: "2026-01-12", Time: "10:00", EndTime: "10:30", MaxBookings: 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[model.Event](t, resp).ID

	resp = do(t, srv, http.MethodPost, "/api/businesses/biz/events/"+id+"/bookings", calendar.BookingRequest{CustomerName: "Asha"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	b := decode[model.Booking](t, resp)
	assert.Equal(t, id, b.EventID)

	resp = do(t, srv, http.MethodPost, "/api/businesses/biz/events/"+id+"/bookings", calendar.BookingRequest{CustomerName: "Ravi"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/businesses/biz/events/missing/bookings", calendar.BookingRequest{CustomerName: "Ravi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSlotTemplatesAndBooking(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp := do(t, srv, http.MethodPost, "/api/businesses/biz/slot-templates", map[string]any{
		"day_of_week": 5, "start_time": "14:00", "end_time": "16:00", "max_bookings": 1, "is_active": true, "delivery_fee": "4.50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tpl := decode[model.SlotTemplate](t, resp)
	assert.Equal(t, "biz", tpl.BusinessID)
	require.NotNil(t, tpl.DeliveryFee)
	assert.Equal(t, "4.5", tpl.DeliveryFee.String())

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/slot-templates", nil)
	assert.Len(t, decode[[]model.SlotTemplate](t, resp), 1)

	type slotsBody struct {
		Date  string             `json:"date"`
		Slots []model.Occurrence `json:"slots"`
	}
	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/slots?date=2026-01-16", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	slots := decode[slotsBody](t, resp)
	require.Len(t, slots.Slots, 1)
	assert.Equal(t, tpl.ID+"_2026-01-16", slots.Slots[0].DisplayID)
	assert.True(t, slots.Slots[0].Availability.Available)

	path := "/api/businesses/biz/slot-templates/" + tpl.ID + "/bookings"
	resp = do(t, srv, http.MethodPost, path, map[string]any{"date": "2026-01-16", "customer_name": "Asha"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, model.TypeDeliverySlot, decode[model.Event](t, resp).Type)

	resp = do(t, srv, http.MethodPost, path, map[string]any{"date": "2026-01-16", "customer_name": "Ravi"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, path, map[string]any{"customer_name": "Ravi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/slots?date=2026-01-16", nil)
	slots = decode[slotsBody](t, resp)
	require.Len(t, slots.Slots, 1)
	assert.False(t, slots.Slots[0].Availability.Available)
}

func TestMonthGrid(t *testing.T) {
	srv := newTestServer(t, Options{})
	resp := do(t, srv, http.MethodPost, "/api/businesses/biz/events", calendar.EventForm{Title: "Stocktake", Type: "business_event", Date: "2026-01-31", Time: "18:00"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/month?year=2026&month=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	grid := decode[monthResponse](t, resp)
	require.Len(t, grid.Cells, 42)
	assert.Equal(t, "2025-12-28", grid.Cells[0].Date)
	assert.False(t, grid.Cells[0].InMonth)

	for _, c := range grid.Cells {
		switch c.Date {
		case "2026-01-10":
			assert.True(t, c.IsToday)
		case "2026-01-31":
			require.Len(t, c.Occurrences, 1)
			assert.Equal(t, "Stocktake", c.Occurrences[0].Title)
		default:
			assert.False(t, c.IsToday, c.Date)
		}
	}

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/month?year=2026&month=13", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestICSExport(t *testing.T) {
	srv := newTestServer(t, Options{CalendarName: "Corner Shop"})
	resp := do(t, srv, http.MethodPost, "/api/businesses/biz/events", calendar.EventForm{
		Title: "Fresh bread", Type: "business_event", Date: "2026-01-06", Time: "09:00", IsRecurring: true, Frequency: "weekly",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/calendar.ics?view=week&date=2026-01-13", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "X-WR-CALNAME:Corner Shop")
	assert.Contains(t, string(body), "SUMMARY:Fresh bread")
	assert.NotContains(t, string(body), "RRULE")

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/calendar.ics?series=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "RRULE:FREQ=WEEKLY")
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, Options{BasicAuth: &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}})

	resp := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/businesses/biz/events", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/businesses/biz/events", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "s3cret")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, Options{Metrics: metrics.New(reg), Gatherer: reg})

	resp := do(t, srv, http.MethodGet, "/api/businesses/biz/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `storecal_http_requests_total{code="200",route="events_window"} 1`)
	assert.Contains(t, string(body), `storecal_calendar_fetch_total{status="ok"} 1`)
}

func TestWriteErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body bool
	}{
		{"upstream", &calendar.FetchError{Op: "query window", Err: io.ErrUnexpectedEOF}, http.StatusBadGateway, true},
		{"canceled store call", &calendar.FetchError{Op: "query window", Err: context.Canceled}, http.StatusOK, false},
		{"canceled", context.Canceled, http.StatusOK, false},
		{"slot full", calendar.ErrSlotFull, http.StatusConflict, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil), tt.err)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.body, rec.Body.Len() > 0)
		})
	}
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "ab"))
}
