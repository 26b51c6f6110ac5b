package model

import "time"

type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return false
}

// Rule is the stored recurrence definition of a template event.
//
// Until is a calendar date: occurrences on that date are still produced.
// Count caps the total number of occurrences, the template included.
type Rule struct {
	Frequency Frequency      `json:"frequency"`
	Interval  int            `json:"interval"`
	Until     *time.Time     `json:"until,omitempty"`
	Count     int            `json:"count,omitempty"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`
}

func (r Rule) Clone() Rule {
	out := r
	if r.Until != nil {
		u := *r.Until
		out.Until = &u
	}
	out.Weekdays = append([]time.Weekday(nil), r.Weekdays...)
	return out
}
