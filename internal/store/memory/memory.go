// Package memory is an in-process Store used by the CLI when no database is
// configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storecal/internal/model"
	"storecal/internal/store"
)

type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	events    map[string]model.Event
	templates map[string]model.SlotTemplate
	bookings  map[string]model.Booking
	products  map[string]model.Product
}

var _ store.Store = (*Store)(nil)

// New returns an empty store. now stamps created_at/updated_at; nil means
// time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:       now,
		events:    make(map[string]model.Event),
		templates: make(map[string]model.SlotTemplate),
		bookings:  make(map[string]model.Booking),
		products:  make(map[string]model.Product),
	}
}

func (s *Store) QueryEvents(_ context.Context, f store.EventFilter) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, e := range s.events {
		if f.Match(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *Store) GetEvent(_ context.Context, businessID, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok || e.BusinessID != businessID {
		return model.Event{}, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) InsertEvent(_ context.Context, e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.events[e.ID] = e.Clone()
	return e, nil
}

// InsertSlotBooking counts and inserts under the write lock.
func (s *Store) InsertSlotBooking(_ context.Context, e model.Event, max int) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max > 0 {
		n := 0
		for _, cur := range s.events {
			if store.SlotBooking(cur, e.BusinessID, e.Start) {
				n++
			}
		}
		if n >= max {
			return model.Event{}, store.ErrCapacity
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.events[e.ID] = e.Clone()
	return e, nil
}

func (s *Store) UpsertEvent(_ context.Context, e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	if prev, ok := s.events[e.ID]; ok {
		if prev.BusinessID != e.BusinessID {
			return model.Event{}, store.ErrNotFound
		}
		e.CreatedAt = prev.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.events[e.ID] = e.Clone()
	return e, nil
}

func (s *Store) UpdateEvent(_ context.Context, businessID, id string, p model.EventPatch) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.BusinessID != businessID {
		return model.Event{}, store.ErrNotFound
	}
	e = p.Apply(e)
	e.UpdatedAt = s.now()
	s.events[id] = e
	return e.Clone(), nil
}

func (s *Store) DeleteEvent(_ context.Context, businessID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.BusinessID != businessID {
		return store.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *Store) IncrementBookings(_ context.Context, businessID, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.BusinessID != businessID {
		return 0, store.ErrNotFound
	}
	if e.Booking == nil {
		e.Booking = &model.BookingDetails{}
	}
	if e.Booking.MaxBookings > 0 && e.Booking.CurrentBookings >= e.Booking.MaxBookings {
		return e.Booking.CurrentBookings, store.ErrCapacity
	}
	e.Booking.CurrentBookings++
	e.UpdatedAt = s.now()
	s.events[id] = e
	return e.Booking.CurrentBookings, nil
}

func (s *Store) ListSlotTemplates(_ context.Context, businessID string) ([]model.SlotTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SlotTemplate, 0)
	for _, t := range s.templates {
		if t.BusinessID == businessID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) InsertSlotTemplate(_ context.Context, t model.SlotTemplate) (model.SlotTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.DeliveryZones = append([]string(nil), t.DeliveryZones...)
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) InsertBooking(_ context.Context, b model.Booking) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BookingPending
	}
	b.CreatedAt = s.now()
	s.bookings[b.ID] = b
	return b, nil
}

func (s *Store) ListBookings(_ context.Context, businessID, eventID string) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if b.BusinessID == businessID && (eventID == "" || b.EventID == eventID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListProducts(_ context.Context, businessID string) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Product, 0)
	for _, p := range s.products {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertProduct(_ context.Context, p model.Product) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.products[p.ID] = p
	return p, nil
}
