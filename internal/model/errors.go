package model

import (
	"fmt"
	"strings"
)

// ValidationError is a single field's validation failure. It is reported to
// the caller and never persisted.
type ValidationError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidationErrors collects every failing field of one input.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields groups messages by field name, the shape the HTTP layer reports.
func (es ValidationErrors) Fields() map[string][]string {
	out := make(map[string][]string, len(es))
	for _, e := range es {
		out[e.Field] = append(out[e.Field], e.Msg)
	}
	return out
}

// Err returns nil for an empty list so callers can `return errs.Err()`.
func (es ValidationErrors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

// ValidateTimes checks the start/end invariant of an event.
func ValidateTimes(e Event) ValidationErrors {
	var errs ValidationErrors
	if e.Start.IsZero() {
		errs = append(errs, ValidationError{"start_datetime", "required"})
	}
	if e.End != nil && !e.End.After(e.Start) {
		errs = append(errs, ValidationError{"end_datetime", "must be after start_datetime"})
	}
	return errs
}
