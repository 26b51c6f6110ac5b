// Package present maps occurrences to what the views show: type filters,
// colors, urgency badges and day buckets.
package present

import (
	"sort"
	"strings"
	"time"

	"storecal/internal/availability"
	"storecal/internal/datemath"
	"storecal/internal/model"
)

// Filter is a view-level type filter tag.
type Filter string

const (
	FilterAll         Filter = "all"
	FilterBusiness    Filter = "business"
	FilterCultural    Filter = "cultural"
	FilterDelivery    Filter = "delivery"
	FilterAppointment Filter = "appointment"
	FilterStoreHours  Filter = "store_hours"
)

var filterTypes = map[Filter]model.EventType{
	FilterBusiness:    model.TypeBusinessEvent,
	FilterCultural:    model.TypeCulturalEvent,
	FilterDelivery:    model.TypeDeliverySlot,
	FilterAppointment: model.TypeAppointment,
	FilterStoreHours:  model.TypeStoreHours,
}

// ParseFilter normalizes a filter tag. An empty tag means all.
func ParseFilter(s string) Filter {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FilterAll
	}
	return Filter(s)
}

// EventType returns the event type a filter selects. ok is false for "all"
// and for unknown tags.
func (f Filter) EventType() (model.EventType, bool) {
	t, ok := filterTypes[f]
	return t, ok
}

type kinded interface {
	Kind() model.EventType
}

// FilterByType keeps the items whose type matches filter. "all" returns the
// input unchanged; an unknown tag returns an empty slice.
func FilterByType[T kinded](items []T, filter Filter) []T {
	if filter == FilterAll {
		return items
	}
	want, ok := filterTypes[filter]
	if !ok {
		return []T{}
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if it.Kind() == want {
			out = append(out, it)
		}
	}
	return out
}

// DefaultColor is used for event types this build does not know.
const DefaultColor = "#9CA3AF"

var typeColors = map[model.EventType]string{
	model.TypeBusinessEvent: "#3B82F6",
	model.TypeCulturalEvent: "#F59E0B",
	model.TypeDeliverySlot:  "#10B981",
	model.TypeAppointment:   "#8B5CF6",
	model.TypeStoreHours:    "#6B7280",
}

// Color returns the event's override, else its type color, else
// DefaultColor.
func Color(e model.Event) string {
	if c := strings.TrimSpace(e.Color); c != "" {
		return c
	}
	if c, ok := typeColors[e.Type]; ok {
		return c
	}
	return DefaultColor
}

// Annotate fills the fields that depend on the clock and on the event's own
// presentation settings.
func Annotate(o *model.Occurrence, now time.Time) {
	o.DaysUntil = datemath.DaysUntil(o.Start, now)
	o.Urgency = availability.Classify(o.DaysUntil)
	o.DisplayColor = Color(o.Event)
}

// DayGroup is one bucket of the list view.
type DayGroup struct {
	Date        time.Time          `json:"date"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// GroupByDay buckets occurrences by the calendar date of their start in loc
// (or in each start's own location when loc is nil). Groups are ascending by
// date; within a group the input order is kept.
func GroupByDay(occ []model.Occurrence, loc *time.Location) []DayGroup {
	// Keyed by date string: time.Time keys also compare the location.
	index := make(map[string]int)
	var groups []DayGroup
	for _, o := range occ {
		start := o.Start
		if loc != nil {
			start = start.In(loc)
		}
		day := datemath.StartOfDay(start)
		key := day.Format("2006-01-02")
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Date: day})
		}
		groups[i].Occurrences = append(groups[i].Occurrences, o)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Date.Before(groups[j].Date)
	})
	return groups
}
