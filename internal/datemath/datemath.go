// Package datemath holds the pure calendar arithmetic behind the month, week,
// day and list views. Every function works in the location of the value it
// is given and returns new values; nothing reads the wall clock.
package datemath

import (
	"fmt"
	"strings"
	"time"
)

// GridDays is the size of every month grid: six full weeks.
const GridDays = 42

// ListDays is how far the list view reaches past its start date.
const ListDays = 30

type ViewType string

const (
	ViewMonth ViewType = "month"
	ViewWeek  ViewType = "week"
	ViewDay   ViewType = "day"
	ViewList  ViewType = "list"
)

// ParseViewType accepts the four view names, case-insensitively.
func ParseViewType(s string) (ViewType, error) {
	switch v := ViewType(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewMonth, ViewWeek, ViewDay, ViewList:
		return v, nil
	}
	return "", fmt.Errorf("unknown view type %q", s)
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}

func StartOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

func EndOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(999*time.Millisecond), d.Location())
}

// DaysInMonth takes a zero-based month index, like the views do.
func DaysInMonth(year, monthIndex0 int) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, time.Month(monthIndex0+2), 0, 0, 0, 0, 0, time.UTC).Day()
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func IsSameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func IsToday(d, now time.Time) bool {
	return IsSameDay(d, now)
}

// DaysUntil counts calendar days from the start of now's day to the start of
// d's day, in now's location. Today is 0, yesterday -1.
func DaysUntil(d, now time.Time) int {
	d = d.In(now.Location())
	// Compare civil dates on a UTC axis so DST transitions cannot produce
	// 23- or 25-hour days.
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// AddDays moves d by n calendar days, keeping the wall-clock time.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// StartOfWeek returns the Sunday on or before d, at 00:00.
func StartOfWeek(d time.Time) time.Time {
	day := StartOfDay(d)
	return AddDays(day, -int(day.Weekday()))
}

// MonthCalendarDays returns the 42 consecutive days of the grid for the
// given month, starting on the Sunday on or before the 1st.
func MonthCalendarDays(year, monthIndex0 int, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(year, time.Month(monthIndex0+1), 1, 0, 0, 0, 0, loc)
	start := StartOfWeek(first)
	days := make([]time.Time, GridDays)
	for i := range days {
		days[i] = AddDays(start, i)
	}
	return days
}

// ViewStart is the first instant shown by the view containing date.
func ViewStart(date time.Time, view ViewType) time.Time {
	switch view {
	case ViewWeek:
		return StartOfWeek(date)
	case ViewDay, ViewList:
		return StartOfDay(date)
	default:
		return StartOfWeek(time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location()))
	}
}

// ViewEnd is the last instant shown by the view. For the list view it is the
// start of the range plus ListDays, not clipped to any month.
func ViewEnd(date time.Time, view ViewType) time.Time {
	switch view {
	case ViewWeek:
		return EndOfDay(AddDays(StartOfWeek(date), 6))
	case ViewDay:
		return EndOfDay(date)
	case ViewList:
		return AddDays(StartOfDay(date), ListDays)
	default:
		return EndOfDay(AddDays(ViewStart(date, ViewMonth), GridDays-1))
	}
}

// ViewWindow is the half-open fetch window for a view. Grid views end at the
// start of the day after ViewEnd; the list view ends exactly at ViewEnd.
func ViewWindow(date time.Time, view ViewType) Window {
	start := ViewStart(date, view)
	end := ViewEnd(date, view)
	if view != ViewList {
		end = AddDays(StartOfDay(end), 1)
	}
	return Window{Start: start, End: end}
}
