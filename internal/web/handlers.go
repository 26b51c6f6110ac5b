package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"storecal/internal/calendar"
	"storecal/internal/datemath"
	"storecal/internal/ics"
	"storecal/internal/model"
	"storecal/internal/present"
)

const dateLayout = "2006-01-02"

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/businesses/{business}").Subrouter()
	s.handle(api, "/events", "events_window", s.handleEvents, http.MethodGet)
	s.handle(api, "/events", "events_create", s.handleCreateEvent, http.MethodPost)
	s.handle(api, "/events/{id}", "events_update", s.handleUpdateEvent, http.MethodPatch)
	s.handle(api, "/events/{id}", "events_delete", s.handleDeleteEvent, http.MethodDelete)
	s.handle(api, "/events/{id}/bookings", "events_book", s.handleBookEvent, http.MethodPost)
	s.handle(api, "/month", "month_grid", s.handleMonth, http.MethodGet)
	s.handle(api, "/slots", "slots_for_date", s.handleSlots, http.MethodGet)
	s.handle(api, "/slot-templates", "slot_templates_list", s.handleListSlotTemplates, http.MethodGet)
	s.handle(api, "/slot-templates", "slot_templates_create", s.handleCreateSlotTemplate, http.MethodPost)
	s.handle(api, "/slot-templates/{template}/bookings", "slot_templates_book", s.handleBookTemplateSlot, http.MethodPost)
	s.handle(api, "/calendar.ics", "calendar_ics", s.handleICS, http.MethodGet)
}

func (s *Server) handle(r *mux.Router, path, route string, h http.HandlerFunc, method string) {
	r.Handle(path, s.opts.Metrics.Middleware(route, h)).Methods(method)
}

func (s *Server) loc() *time.Location { return s.svc.Location() }

func (s *Server) now() time.Time { return s.opts.Now().In(s.loc()) }

// parseDate reads a YYYY-MM-DD parameter in the business timezone, falling
// back to today.
func (s *Server) parseDate(field, v string) (time.Time, error) {
	if v == "" {
		return datemath.StartOfDay(s.now()), nil
	}
	d, err := time.ParseInLocation(dateLayout, v, s.loc())
	if err != nil {
		return time.Time{}, model.ValidationErrors{{Field: field, Msg: "must be a date in YYYY-MM-DD form"}}
	}
	return d, nil
}

// windowQuery builds the calendar query from ?view=&date= or from an
// explicit ?start=&end= date range (end exclusive).
func (s *Server) windowQuery(r *http.Request) (calendar.Query, datemath.ViewType, error) {
	business := mux.Vars(r)["business"]
	q := r.URL.Query()
	filter := present.ParseFilter(q.Get("filter"))

	if start, end := q.Get("start"), q.Get("end"); start != "" || end != "" {
		from, err := s.parseDate("start", start)
		if err != nil {
			return calendar.Query{}, "", err
		}
		to, err := s.parseDate("end", end)
		if err != nil {
			return calendar.Query{}, "", err
		}
		if !to.After(from) {
			return calendar.Query{}, "", model.ValidationErrors{{Field: "end", Msg: "must be after start"}}
		}
		return calendar.Query{
			BusinessID:           business,
			Window:               datemath.Window{Start: from, End: to},
			Filter:               filter,
			IncludeSlotTemplates: q.Get("slots") != "false",
		}, datemath.ViewList, nil
	}

	view := datemath.ViewWeek
	if v := q.Get("view"); v != "" {
		parsed, err := datemath.ParseViewType(v)
		if err != nil {
			return calendar.Query{}, "", model.ValidationErrors{{Field: "view", Msg: err.Error()}}
		}
		view = parsed
	}
	date, err := s.parseDate("date", q.Get("date"))
	if err != nil {
		return calendar.Query{}, "", err
	}
	cq := calendar.ViewQuery(business, date, view, filter, s.loc())
	cq.IncludeSlotTemplates = q.Get("slots") != "false"
	return cq, view, nil
}

type eventsResponse struct {
	BusinessID  string             `json:"business_id"`
	View        datemath.ViewType  `json:"view"`
	RangeStart  time.Time          `json:"range_start"`
	RangeEnd    time.Time          `json:"range_end"`
	Timezone    string             `json:"timezone"`
	Occurrences []model.Occurrence `json:"occurrences"`
	Days        []present.DayGroup `json:"days,omitempty"`
	Truncated   []string           `json:"truncated,omitempty"`
	Invalid     []string           `json:"invalid,omitempty"`
}

// handleEvents returns the occurrences of a view window.
//
// GET /api/businesses/{business}/events?view=week&date=2026-01-15&filter=delivery
// GET /api/businesses/{business}/events?start=2026-01-01&end=2026-02-01&group=day
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q, view, err := s.windowQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.FetchWindow(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := eventsResponse{
		BusinessID:  q.BusinessID,
		View:        view,
		RangeStart:  q.Window.Start,
		RangeEnd:    q.Window.End,
		Timezone:    s.loc().String(),
		Occurrences: res.Occurrences,
		Truncated:   res.Truncated,
		Invalid:     res.Invalid,
	}
	if resp.Occurrences == nil {
		resp.Occurrences = []model.Occurrence{}
	}
	if r.URL.Query().Get("group") == "day" || view == datemath.ViewList {
		resp.Days = present.GroupByDay(res.Occurrences, s.loc())
	}
	writeJSON(w, http.StatusOK, resp)
}

type monthCell struct {
	Date        string             `json:"date"`
	InMonth     bool               `json:"in_month"`
	IsToday     bool               `json:"is_today"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

type monthResponse struct {
	Year  int         `json:"year"`
	Month int         `json:"month"`
	Cells []monthCell `json:"cells"`
}

// handleMonth returns the 42-cell grid of a month with each day's
// occurrences.
//
// GET /api/businesses/{business}/month?year=2026&month=1
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	year, month := now.Year(), int(now.Month())
	q := r.URL.Query()
	var errs model.ValidationErrors
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, model.ValidationError{Field: "year", Msg: "must be a positive integer"})
		}
		year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			errs = append(errs, model.ValidationError{Field: "month", Msg: "must be between 1 and 12"})
		}
		month = n
	}
	if len(errs) > 0 {
		writeError(w, r, errs)
		return
	}

	days := datemath.MonthCalendarDays(year, month-1, s.loc())
	res, err := s.svc.FetchWindow(r.Context(), calendar.Query{
		BusinessID:           mux.Vars(r)["business"],
		Window:               datemath.Window{Start: days[0], End: datemath.AddDays(days[len(days)-1], 1)},
		Filter:               present.ParseFilter(q.Get("filter")),
		IncludeSlotTemplates: q.Get("slots") != "false",
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	byDay := map[string][]model.Occurrence{}
	for _, g := range present.GroupByDay(res.Occurrences, s.loc()) {
		byDay[g.Date.Format(dateLayout)] = g.Occurrences
	}
	cells := make([]monthCell, 0, len(days))
	for _, d := range days {
		key := d.Format(dateLayout)
		occ := byDay[key]
		if occ == nil {
			occ = []model.Occurrence{}
		}
		cells = append(cells, monthCell{
			Date:        key,
			InMonth:     int(d.Month()) == month,
			IsToday:     datemath.IsToday(d, now),
			Occurrences: occ,
		})
	}
	writeJSON(w, http.StatusOK, monthResponse{Year: year, Month: month, Cells: cells})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var form calendar.EventForm
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := s.svc.CreateFromForm(r.Context(), mux.Vars(r)["business"], form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch model.EventPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	ev, err := s.svc.Update(r.Context(), vars["business"], vars["id"], patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.svc.Delete(r.Context(), vars["business"], vars["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBookEvent(w http.ResponseWriter, r *http.Request) {
	var req calendar.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	b, err := s.svc.Book(r.Context(), vars["business"], vars["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GET /api/businesses/{business}/slots?date=2026-01-16
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	date, err := s.parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	slots, err := s.svc.SlotsForDate(r.Context(), mux.Vars(r)["business"], date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.Format(dateLayout), "slots": slots})
}

func (s *Server) handleListSlotTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.svc.ListSlotTemplates(r.Context(), mux.Vars(r)["business"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if templates == nil {
		templates = []model.SlotTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleCreateSlotTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl model.SlotTemplate
	if err := decodeJSON(w, r, &tpl); err != nil {
		writeError(w, r, err)
		return
	}
	tpl.ID = ""
	tpl.BusinessID = mux.Vars(r)["business"]
	created, err := s.svc.CreateSlotTemplate(r.Context(), tpl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type templateBookingRequest struct {
	Date string `json:"date"`
	calendar.BookingRequest
}

// POST /api/businesses/{business}/slot-templates/{template}/bookings
// {"date": "2026-01-16", "customer_name": "..."}
func (s *Server) handleBookTemplateSlot(w http.ResponseWriter, r *http.Request) {
	var req templateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Date == "" {
		writeError(w, r, model.ValidationErrors{{Field: "date", Msg: "required"}})
		return
	}
	date, err := s.parseDate("date", req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	ev, err := s.svc.BookTemplateSlot(r.Context(), vars["business"], vars["template"], date, req.BookingRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleICS exports a window as iCalendar. With ?series=true the stored
// rows are exported instead, recurring ones as RRULEs.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	var body string
	if r.URL.Query().Get("series") == "true" {
		events, err := s.svc.ListEvents(r.Context(), mux.Vars(r)["business"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		body = ics.ExportEvents(s.opts.CalendarName, events, s.now())
	} else {
		q, _, err := s.windowQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.svc.FetchWindow(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		body = ics.ExportOccurrences(s.opts.CalendarName, res.Occurrences, s.now())
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
