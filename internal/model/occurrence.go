package model

import (
	"strconv"
	"strings"
	"time"
)

// OccurrenceSeparator joins a parent id and its occurrence suffix in display
// ids. Stored ids are UUIDs, which never contain it.
const OccurrenceSeparator = "_"

const occurrenceDateLayout = "2006-01-02"

// OccurrenceID identifies one concrete occurrence. Recurrence expansions set
// Index (0 is the stored template itself); template-generated slots set Date.
type OccurrenceID struct {
	ParentID string `json:"parent_id"`
	Index    int    `json:"index"`
	Date     string `json:"date,omitempty"`
}

// String renders the display id. Index 0 without a date is the parent row and
// renders as the bare parent id.
func (o OccurrenceID) String() string {
	if o.Date != "" {
		return o.ParentID + OccurrenceSeparator + o.Date
	}
	if o.Index == 0 {
		return o.ParentID
	}
	return o.ParentID + OccurrenceSeparator + strconv.Itoa(o.Index)
}

// Virtual reports whether the id denotes a synthesized occurrence rather than
// a stored row.
func (o OccurrenceID) Virtual() bool {
	return o.Date != "" || o.Index > 0
}

// ParseOccurrenceID splits a display id into its parent and suffix. Ids
// without the separator are plain stored ids. A separator followed by
// anything other than a positive index or an ISO date is rejected.
func ParseOccurrenceID(id string) (OccurrenceID, bool) {
	if id == "" {
		return OccurrenceID{}, false
	}
	i := strings.LastIndex(id, OccurrenceSeparator)
	if i < 0 {
		return OccurrenceID{ParentID: id}, true
	}
	parent, suffix := id[:i], id[i+len(OccurrenceSeparator):]
	if parent == "" || suffix == "" {
		return OccurrenceID{}, false
	}
	if n, err := strconv.Atoi(suffix); err == nil {
		if n <= 0 {
			return OccurrenceID{}, false
		}
		return OccurrenceID{ParentID: parent, Index: n}, true
	}
	if _, err := time.Parse(occurrenceDateLayout, suffix); err == nil {
		return OccurrenceID{ParentID: parent, Date: suffix}, true
	}
	return OccurrenceID{}, false
}

// DateOccurrenceID builds the id of a template-generated occurrence on day.
func DateOccurrenceID(parentID string, day time.Time) OccurrenceID {
	return OccurrenceID{ParentID: parentID, Date: day.Format(occurrenceDateLayout)}
}

// UrgencyTier is the visual severity of an occurrence's badge.
type UrgencyTier string

const (
	TierPast     UrgencyTier = "past"
	TierCritical UrgencyTier = "critical"
	TierHigh     UrgencyTier = "high"
	TierMedium   UrgencyTier = "medium"
	TierLow      UrgencyTier = "low"
)

type Urgency struct {
	Label string      `json:"label"`
	Tier  UrgencyTier `json:"tier"`
}

// SlotAvailability is the capacity view of a bookable occurrence.
type SlotAvailability struct {
	Max       int  `json:"max_bookings"`
	Current   int  `json:"current_bookings"`
	Remaining int  `json:"remaining"`
	Available bool `json:"is_available"`
	Unbounded bool `json:"unbounded"`
}

// Readiness summarizes how many stock recommendations are already covered.
type Readiness struct {
	Ready      int `json:"ready"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Occurrence is one concrete, display-ready instance of an Event.
type Occurrence struct {
	Event
	OccurrenceID OccurrenceID `json:"occurrence"`
	DisplayID    string       `json:"display_id"`
	Virtual      bool         `json:"virtual"`

	DaysUntil    int               `json:"days_until"`
	Urgency      Urgency           `json:"urgency"`
	DisplayColor string            `json:"display_color"`
	Availability *SlotAvailability `json:"availability,omitempty"`
	Readiness    *Readiness        `json:"readiness,omitempty"`
	SlotTemplate *SlotTemplate     `json:"slot_template,omitempty"`
}
