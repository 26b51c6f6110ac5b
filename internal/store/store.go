// Package store defines the persistence boundary of the calendar. The memory
// and postgres subpackages implement it.
package store

import (
	"context"
	"errors"
	"time"

	"storecal/internal/model"
)

// ErrNotFound is returned when a row addressed by id does not exist for the
// given business.
var ErrNotFound = errors.New("store: not found")

// ErrCapacity is returned by IncrementBookings when the event is already at
// its max_bookings, and by InsertSlotBooking when the slot is full.
var ErrCapacity = errors.New("store: no capacity left")

// EventFilter selects events. Zero values mean "no constraint", except
// BusinessID which is always required.
type EventFilter struct {
	BusinessID string
	Types      []model.EventType
	// StartFrom is inclusive, StartBefore exclusive.
	StartFrom   time.Time
	StartBefore time.Time
	Recurring   *bool
}

// Match reports whether e satisfies the filter. Stores that filter in memory
// use it; the SQL store mirrors it in its WHERE clause.
func (f EventFilter) Match(e model.Event) bool {
	if e.BusinessID != f.BusinessID {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.StartFrom.IsZero() && e.Start.Before(f.StartFrom) {
		return false
	}
	if !f.StartBefore.IsZero() && !e.Start.Before(f.StartBefore) {
		return false
	}
	if f.Recurring != nil && e.IsRecurring != *f.Recurring {
		return false
	}
	return true
}

// SlotBooking reports whether e occupies a place in the business's delivery
// slot starting at start. Cancelled rows free their place.
func SlotBooking(e model.Event, businessID string, start time.Time) bool {
	return e.BusinessID == businessID &&
		e.Type == model.TypeDeliverySlot &&
		e.Status != model.StatusCancelled &&
		e.Start.Equal(start)
}

// Store is what the calendar service needs from persistence. Query results
// are ordered by start ascending.
type Store interface {
	QueryEvents(ctx context.Context, f EventFilter) ([]model.Event, error)
	GetEvent(ctx context.Context, businessID, id string) (model.Event, error)
	// InsertEvent assigns ID and timestamps when empty and returns the
	// stored row.
	InsertEvent(ctx context.Context, e model.Event) (model.Event, error)
	// UpsertEvent inserts or replaces by id. Used by feed imports.
	UpsertEvent(ctx context.Context, e model.Event) (model.Event, error)
	UpdateEvent(ctx context.Context, businessID, id string, p model.EventPatch) (model.Event, error)
	DeleteEvent(ctx context.Context, businessID, id string) error
	// IncrementBookings adds one to current_bookings in a single atomic
	// step and returns the new count. It fails with ErrCapacity when a
	// max_bookings limit is reached.
	IncrementBookings(ctx context.Context, businessID, id string) (int, error)
	// InsertSlotBooking stores e, a delivery_slot booking, only if fewer
	// than max live bookings already start at e.Start. Counting and
	// inserting are one step; a full slot fails with ErrCapacity. max 0
	// means unlimited.
	InsertSlotBooking(ctx context.Context, e model.Event, max int) (model.Event, error)

	ListSlotTemplates(ctx context.Context, businessID string) ([]model.SlotTemplate, error)
	InsertSlotTemplate(ctx context.Context, t model.SlotTemplate) (model.SlotTemplate, error)

	InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	ListBookings(ctx context.Context, businessID, eventID string) ([]model.Booking, error)

	ListProducts(ctx context.Context, businessID string) ([]model.Product, error)
	UpsertProduct(ctx context.Context, p model.Product) (model.Product, error)
}
