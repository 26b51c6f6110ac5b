// Package calendar is the data access layer of the calendar: it fetches the
// rows a window needs, expands and annotates them, and applies mutations
// against the parent rows of virtual occurrences.
package calendar

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"storecal/internal/availability"
	"storecal/internal/datemath"
	appLog "storecal/internal/log"
	"storecal/internal/metrics"
	"storecal/internal/model"
	"storecal/internal/notify"
	"storecal/internal/present"
	"storecal/internal/recurrence"
	"storecal/internal/store"
)

// Options configures a Service. The zero value expands recurrences in
// time.Local using the wall clock.
type Options struct {
	// Location is the business timezone: occurrences are shown in it and
	// form dates are read in it.
	Location *time.Location
	// SkipExpansion disables recurrence expansion; only rows starting in
	// the window are returned.
	SkipExpansion          bool
	MaxOccurrencesPerEvent int
	Now                    func() time.Time
	Metrics                *metrics.Metrics
}

type Service struct {
	store    store.Store
	bus      notify.Bus
	opts     Options
	validate *validator.Validate
}

func NewService(st store.Store, bus notify.Bus, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: st, bus: bus, opts: opts, validate: newValidator()}
}

func (s *Service) Location() *time.Location { return s.opts.Location }

func (s *Service) now() time.Time { return s.opts.Now().In(s.opts.Location) }

// Query is one window request.
type Query struct {
	BusinessID string
	Window     datemath.Window
	Filter     present.Filter
	// IncludeSlotTemplates adds virtual delivery slots generated from the
	// business's slot templates.
	IncludeSlotTemplates bool
}

// ViewQuery builds the query for the view containing date, in loc.
func ViewQuery(businessID string, date time.Time, view datemath.ViewType, filter present.Filter, loc *time.Location) Query {
	if loc != nil {
		date = date.In(loc)
	}
	return Query{
		BusinessID:           businessID,
		Window:               datemath.ViewWindow(date, view),
		Filter:               filter,
		IncludeSlotTemplates: true,
	}
}

type Result struct {
	Query       Query              `json:"-"`
	Occurrences []model.Occurrence `json:"occurrences"`
	Truncated   []string           `json:"truncated,omitempty"`
	Invalid     []string           `json:"invalid,omitempty"`
}

// FetchWindow runs the two window queries (rows starting in the window, and
// recurring templates anchored before it), expands them and annotates every
// occurrence. Store failures are returned as *FetchError.
func (s *Service) FetchWindow(ctx context.Context, q Query) (res Result, err error) {
	started := time.Now()
	defer func() {
		s.opts.Metrics.ObserveFetch(time.Since(started), err, len(res.Occurrences), len(res.Truncated), len(res.Invalid))
	}()

	res.Query = q
	if q.BusinessID == "" {
		return res, model.ValidationErrors{{Field: "business_id", Msg: "required"}}
	}
	if q.Window.End.Before(q.Window.Start) {
		return res, model.ValidationErrors{{Field: "window", Msg: "end is before start"}}
	}
	if q.Filter == "" {
		q.Filter = present.FilterAll
	}

	var types []model.EventType
	if q.Filter != present.FilterAll {
		t, ok := q.Filter.EventType()
		if !ok {
			res.Occurrences = []model.Occurrence{}
			return res, nil
		}
		types = []model.EventType{t}
	}

	inWindow, err := s.store.QueryEvents(ctx, store.EventFilter{
		BusinessID:  q.BusinessID,
		Types:       types,
		StartFrom:   q.Window.Start,
		StartBefore: q.Window.End,
	})
	if err != nil {
		return res, &FetchError{Op: "query window", Err: err}
	}

	now := s.now()
	var occ []model.Occurrence
	if s.opts.SkipExpansion {
		occ = make([]model.Occurrence, 0, len(inWindow))
		for _, e := range inWindow {
			if e.BusinessID != q.BusinessID {
				continue
			}
			id := model.OccurrenceID{ParentID: e.ID}
			occ = append(occ, model.Occurrence{Event: e.Clone(), OccurrenceID: id, DisplayID: id.String()})
		}
	} else {
		recurring := true
		templates, err := s.store.QueryEvents(ctx, store.EventFilter{
			BusinessID:  q.BusinessID,
			Types:       types,
			StartBefore: q.Window.Start,
			Recurring:   &recurring,
		})
		if err != nil {
			return res, &FetchError{Op: "query recurring templates", Err: err}
		}

		expanded, err := recurrence.Expand(union(inWindow, templates), recurrence.ExpandConfig{
			DisplayLocation:        s.opts.Location,
			Window:                 q.Window,
			Now:                    now,
			BusinessID:             q.BusinessID,
			MaxOccurrencesPerEvent: s.opts.MaxOccurrencesPerEvent,
		})
		if err != nil {
			return res, err
		}
		occ = expanded.Occurrences
		res.Truncated = expanded.Truncated
		res.Invalid = expanded.Invalid
	}

	if q.IncludeSlotTemplates && (q.Filter == present.FilterAll || q.Filter == present.FilterDelivery) {
		slots, err := s.windowSlots(ctx, q, inWindow)
		if err != nil {
			return res, err
		}
		occ = append(occ, slots...)
	}

	s.annotate(ctx, q.BusinessID, occ, now)

	occ = present.FilterByType(occ, q.Filter)
	sort.SliceStable(occ, func(i, j int) bool { return occ[i].Start.Before(occ[j].Start) })
	res.Occurrences = occ
	return res, nil
}

// ListEvents returns the stored rows of a business, recurring templates
// unexpanded. It backs the subscription export.
func (s *Service) ListEvents(ctx context.Context, businessID string) ([]model.Event, error) {
	if businessID == "" {
		return nil, model.ValidationErrors{{Field: "business_id", Msg: "required"}}
	}
	events, err := s.store.QueryEvents(ctx, store.EventFilter{BusinessID: businessID})
	if err != nil {
		return nil, &FetchError{Op: "list events", Err: err}
	}
	return events, nil
}

// union appends templates not already present in rows.
func union(rows, templates []model.Event) []model.Event {
	seen := make(map[string]bool, len(rows))
	out := make([]model.Event, 0, len(rows)+len(templates))
	for _, e := range rows {
		seen[e.ID] = true
		out = append(out, e)
	}
	for _, e := range templates {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out
}

// annotate fills display fields, slot availability and stock readiness.
// Products are loaded once and only when a cultural occurrence needs them; a
// failure there leaves readiness unset instead of failing the fetch.
func (s *Service) annotate(ctx context.Context, businessID string, occ []model.Occurrence, now time.Time) {
	var (
		products       []model.Product
		productsLoaded bool
	)
	for i := range occ {
		o := &occ[i]
		present.Annotate(o, now)

		if o.Type.Bookable() && o.Booking != nil {
			a := availability.Slot(o.Booking.MaxBookings, o.Booking.CurrentBookings)
			o.Availability = &a
		}

		if o.Type == model.TypeCulturalEvent && o.Cultural != nil && len(o.Cultural.StockRecommendations) > 0 {
			if !productsLoaded {
				productsLoaded = true
				var err error
				products, err = s.store.ListProducts(ctx, businessID)
				if err != nil {
					appLog.Error("calendar: list products failed; skipping readiness", err, "business_id", businessID)
					products = nil
				}
			}
			if products == nil {
				continue
			}
			if r, ok := availability.Readiness(o.Cultural.StockRecommendations, products); ok {
				o.Readiness = &r
			}
		}
	}
}

// resolve maps a display id to its stored parent row.
func (s *Service) resolve(ctx context.Context, businessID, id string) (model.Event, error) {
	oid, ok := model.ParseOccurrenceID(id)
	if !ok {
		return model.Event{}, &ResolutionError{ID: id, Reason: "malformed occurrence id"}
	}
	ev, err := s.store.GetEvent(ctx, businessID, oid.ParentID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Event{}, &ResolutionError{ID: id, Reason: "no such event", Err: err}
	}
	if err != nil {
		return model.Event{}, &FetchError{Op: "get event", Err: err}
	}
	return ev, nil
}

// validateEvent checks the invariants every stored row must satisfy.
func validateEvent(e model.Event) model.ValidationErrors {
	var errs model.ValidationErrors
	if e.BusinessID == "" {
		errs = append(errs, model.ValidationError{Field: "business_id", Msg: "required"})
	}
	if e.Title == "" {
		errs = append(errs, model.ValidationError{Field: "title", Msg: "required"})
	}
	errs = append(errs, model.ValidateTimes(e)...)
	if e.IsRecurring {
		if e.Recurrence == nil {
			errs = append(errs, model.ValidationError{Field: "recurrence_rule", Msg: "required when is_recurring is set"})
		} else if !e.Start.IsZero() {
			errs = append(errs, recurrence.Validate(*e.Recurrence, e.Start)...)
		}
	}
	return errs
}

func (s *Service) publish(ctx context.Context, table, businessID string, op notify.Op, id string) {
	if s.bus == nil {
		return
	}
	c := notify.Change{Table: table, BusinessID: businessID, Op: op, ID: id}
	if err := s.bus.Publish(ctx, c); err != nil {
		// The write already happened; views catch up on their next refresh.
		appLog.Error("calendar: publish change failed", err, "table", table, "id", id)
	}
}

// CreateFromForm translates and stores a form submission.
func (s *Service) CreateFromForm(ctx context.Context, businessID string, f EventForm) (model.Event, error) {
	ev, errs := f.ToEvent(s.validate, businessID, s.opts.Location)
	if len(errs) > 0 {
		return model.Event{}, errs
	}
	return s.Create(ctx, ev)
}

func (s *Service) Create(ctx context.Context, e model.Event) (model.Event, error) {
	if !e.IsRecurring {
		e.Recurrence = nil
	}
	if errs := validateEvent(e); len(errs) > 0 {
		return model.Event{}, errs
	}
	if e.Status == "" {
		e.Status = model.StatusScheduled
	}
	created, err := s.store.InsertEvent(ctx, e)
	if err != nil {
		return model.Event{}, &FetchError{Op: "insert event", Err: err}
	}
	appLog.Info("calendar: event created", "id", created.ID, "business_id", created.BusinessID, "type", created.Type)
	s.publish(ctx, notify.TableEvents, created.BusinessID, notify.OpInsert, created.ID)
	return created, nil
}

// Update applies p to the parent of id. Updating through an occurrence id
// changes the whole series.
func (s *Service) Update(ctx context.Context, businessID, id string, p model.EventPatch) (model.Event, error) {
	cur, err := s.resolve(ctx, businessID, id)
	if err != nil {
		return model.Event{}, err
	}
	if errs := validateEvent(p.Apply(cur)); len(errs) > 0 {
		return model.Event{}, errs
	}
	updated, err := s.store.UpdateEvent(ctx, businessID, cur.ID, p)
	if errors.Is(err, store.ErrNotFound) {
		return model.Event{}, &ResolutionError{ID: id, Reason: "no such event", Err: err}
	}
	if err != nil {
		return model.Event{}, &FetchError{Op: "update event", Err: err}
	}
	s.publish(ctx, notify.TableEvents, businessID, notify.OpUpdate, updated.ID)
	return updated, nil
}

// Delete removes the parent of id, and with it every occurrence.
func (s *Service) Delete(ctx context.Context, businessID, id string) error {
	oid, ok := model.ParseOccurrenceID(id)
	if !ok {
		return &ResolutionError{ID: id, Reason: "malformed occurrence id"}
	}
	err := s.store.DeleteEvent(ctx, businessID, oid.ParentID)
	if errors.Is(err, store.ErrNotFound) {
		return &ResolutionError{ID: id, Reason: "no such event", Err: err}
	}
	if err != nil {
		return &FetchError{Op: "delete event", Err: err}
	}
	appLog.Info("calendar: event deleted", "id", oid.ParentID, "business_id", businessID)
	s.publish(ctx, notify.TableEvents, businessID, notify.OpDelete, oid.ParentID)
	return nil
}

// Book reserves one place on a bookable event. The counter is incremented
// by the store in one atomic step before the booking row is written.
func (s *Service) Book(ctx context.Context, businessID, eventID string, req BookingRequest) (model.Booking, error) {
	if errs := checkStruct(s.validate, req); len(errs) > 0 {
		return model.Booking{}, errs
	}
	ev, err := s.resolve(ctx, businessID, eventID)
	if err != nil {
		return model.Booking{}, err
	}
	if !ev.Type.Bookable() {
		return model.Booking{}, model.ValidationErrors{{Field: "event_id", Msg: "event type " + string(ev.Type) + " is not bookable"}}
	}

	if _, err := s.store.IncrementBookings(ctx, businessID, ev.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrCapacity):
			return model.Booking{}, ErrSlotFull
		case errors.Is(err, store.ErrNotFound):
			return model.Booking{}, &ResolutionError{ID: eventID, Reason: "no such event", Err: err}
		default:
			return model.Booking{}, &FetchError{Op: "increment bookings", Err: err}
		}
	}

	b, err := s.store.InsertBooking(ctx, model.Booking{
		BusinessID:    businessID,
		EventID:       ev.ID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		OrderID:       req.OrderID,
		Status:        model.BookingConfirmed,
	})
	if err != nil {
		return model.Booking{}, &FetchError{Op: "insert booking", Err: err}
	}
	s.publish(ctx, notify.TableBookings, businessID, notify.OpInsert, b.ID)
	s.publish(ctx, notify.TableEvents, businessID, notify.OpUpdate, ev.ID)
	return b, nil
}

// ImportEvents upserts externally sourced rows (holiday feeds). Rows that
// fail validation are skipped and logged; the count of stored rows is
// returned.
func (s *Service) ImportEvents(ctx context.Context, events []model.Event) (int, error) {
	stored := 0
	businesses := map[string]bool{}
	for _, e := range events {
		if errs := validateEvent(e); len(errs) > 0 {
			appLog.Error("calendar: skipping invalid imported event", errs, "id", e.ID, "title", e.Title)
			continue
		}
		if _, err := s.store.UpsertEvent(ctx, e); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				appLog.Error("calendar: imported id belongs to another business", err, "id", e.ID)
				continue
			}
			return stored, &FetchError{Op: "upsert event", Err: err}
		}
		stored++
		businesses[e.BusinessID] = true
	}
	for b := range businesses {
		s.publish(ctx, notify.TableEvents, b, notify.OpUpdate, "")
	}
	return stored, nil
}
