package calendar

import (
	"errors"
	"fmt"
)

// ErrSlotFull is returned when a booking would exceed max_bookings.
var ErrSlotFull = errors.New("calendar: slot is fully booked")

// FetchError wraps a failure of the store or the notification bus.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("calendar: %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ResolutionError means an id could not be mapped to a stored parent event:
// the id is malformed, or its parent does not exist for the business.
type ResolutionError struct {
	ID     string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("calendar: cannot resolve %q: %s", e.ID, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
