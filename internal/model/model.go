package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType discriminates the Event variants. Unknown strings are tolerated
// everywhere (color lookup, filtering) so newer rows do not break older code.
type EventType string

const (
	TypeBusinessEvent EventType = "business_event"
	TypeCulturalEvent EventType = "cultural_event"
	TypeDeliverySlot  EventType = "delivery_slot"
	TypeAppointment   EventType = "appointment"
	TypeStoreHours    EventType = "store_hours"
)

// KnownTypes lists every EventType this build understands.
var KnownTypes = []EventType{
	TypeBusinessEvent,
	TypeCulturalEvent,
	TypeDeliverySlot,
	TypeAppointment,
	TypeStoreHours,
}

// Bookable reports whether events of this type carry capacity.
func (t EventType) Bookable() bool {
	return t == TypeDeliverySlot || t == TypeAppointment
}

type EventStatus string

const (
	StatusScheduled  EventStatus = "scheduled"
	StatusConfirmed  EventStatus = "confirmed"
	StatusInProgress EventStatus = "in_progress"
	StatusCompleted  EventStatus = "completed"
	StatusCancelled  EventStatus = "cancelled"
	StatusNoShow     EventStatus = "no_show"
)

// Event is a stored, schedulable happening. For recurring events the stored
// row is the template and its Start is the first occurrence.
type Event struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`

	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type"`

	Start    time.Time  `json:"start_datetime"`
	End      *time.Time `json:"end_datetime,omitempty"`
	AllDay   bool       `json:"all_day"`
	Timezone string     `json:"timezone,omitempty"`

	Status   EventStatus `json:"status"`
	Priority int         `json:"priority"`
	IsPublic bool        `json:"is_public"`
	Color    string      `json:"color,omitempty"`
	Emoji    string      `json:"emoji,omitempty"`

	IsRecurring bool  `json:"is_recurring"`
	Recurrence  *Rule `json:"recurrence_rule,omitempty"`

	// Variant payloads; which one is set follows Type.
	Cultural *CulturalDetails `json:"cultural,omitempty"`
	Booking  *BookingDetails  `json:"booking,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CulturalDetails is the cultural_event payload.
type CulturalDetails struct {
	DemandIncreasePct    float64               `json:"expected_demand_increase"`
	TargetCommunities    []string              `json:"target_communities,omitempty"`
	AffectedProducts     []string              `json:"affected_products,omitempty"`
	StockRecommendations []StockRecommendation `json:"stock_recommendations,omitempty"`
}

type StockRecommendation struct {
	Product    string `json:"product"`
	ExtraUnits int    `json:"extra_units"`
}

// BookingDetails is the delivery_slot / appointment payload.
// MaxBookings == 0 means the slot has no capacity limit.
type BookingDetails struct {
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	OrderID         string `json:"order_id,omitempty"`
	MaxBookings     int    `json:"max_bookings,omitempty"`
	CurrentBookings int    `json:"current_bookings"`
}

// Kind returns the event type. Occurrences promote it, so filters work on
// both.
func (e Event) Kind() EventType { return e.Type }

// Duration is End-Start, or zero when the event has no end.
func (e Event) Duration() time.Duration {
	if e.End == nil {
		return 0
	}
	return e.End.Sub(e.Start)
}

// Clone returns a deep copy; occurrences must never share mutable state with
// their template or siblings.
func (e Event) Clone() Event {
	out := e
	if e.End != nil {
		end := *e.End
		out.End = &end
	}
	if e.Recurrence != nil {
		r := e.Recurrence.Clone()
		out.Recurrence = &r
	}
	if e.Cultural != nil {
		c := *e.Cultural
		c.TargetCommunities = append([]string(nil), e.Cultural.TargetCommunities...)
		c.AffectedProducts = append([]string(nil), e.Cultural.AffectedProducts...)
		c.StockRecommendations = append([]StockRecommendation(nil), e.Cultural.StockRecommendations...)
		out.Cultural = &c
	}
	if e.Booking != nil {
		b := *e.Booking
		out.Booking = &b
	}
	return out
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Type        *EventType       `json:"type,omitempty"`
	Start       *time.Time       `json:"start_datetime,omitempty"`
	End         *time.Time       `json:"end_datetime,omitempty"`
	ClearEnd    bool             `json:"clear_end,omitempty"`
	AllDay      *bool            `json:"all_day,omitempty"`
	Timezone    *string          `json:"timezone,omitempty"`
	Status      *EventStatus     `json:"status,omitempty"`
	Priority    *int             `json:"priority,omitempty"`
	IsPublic    *bool            `json:"is_public,omitempty"`
	Color       *string          `json:"color,omitempty"`
	Emoji       *string          `json:"emoji,omitempty"`
	IsRecurring *bool            `json:"is_recurring,omitempty"`
	Recurrence  *Rule            `json:"recurrence_rule,omitempty"`
	Cultural    *CulturalDetails `json:"cultural,omitempty"`
	Booking     *BookingDetails  `json:"booking,omitempty"`
}

// Apply returns a copy of e with the patch applied.
func (p EventPatch) Apply(e Event) Event {
	out := e.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Start != nil {
		out.Start = *p.Start
	}
	if p.ClearEnd {
		out.End = nil
	} else if p.End != nil {
		end := *p.End
		out.End = &end
	}
	if p.AllDay != nil {
		out.AllDay = *p.AllDay
	}
	if p.Timezone != nil {
		out.Timezone = *p.Timezone
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.IsPublic != nil {
		out.IsPublic = *p.IsPublic
	}
	if p.Color != nil {
		out.Color = *p.Color
	}
	if p.Emoji != nil {
		out.Emoji = *p.Emoji
	}
	if p.IsRecurring != nil {
		out.IsRecurring = *p.IsRecurring
		if !out.IsRecurring {
			out.Recurrence = nil
		}
	}
	if p.Recurrence != nil {
		r := p.Recurrence.Clone()
		out.Recurrence = &r
	}
	if p.Cultural != nil {
		c := *p.Cultural
		out.Cultural = &c
	}
	if p.Booking != nil {
		b := *p.Booking
		// The counter only moves through IncrementBookings.
		b.CurrentBookings = 0
		if e.Booking != nil {
			b.CurrentBookings = e.Booking.CurrentBookings
		}
		out.Booking = &b
	}
	return out
}

// SlotTemplate is a weekly delivery availability definition. It is not an
// Event row; it produces virtual delivery_slot occurrences on demand.
type SlotTemplate struct {
	ID            string           `json:"id"`
	BusinessID    string           `json:"business_id"`
	DayOfWeek     time.Weekday     `json:"day_of_week"`
	StartTime     string           `json:"start_time"` // "15:04"
	EndTime       string           `json:"end_time"`
	MaxBookings   int              `json:"max_bookings"`
	Active        bool             `json:"is_active"`
	DeliveryZones []string         `json:"delivery_zones,omitempty"`
	DeliveryFee   *decimal.Decimal `json:"delivery_fee,omitempty"`
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

// Booking is a reservation against a delivery slot or appointment event.
type Booking struct {
	ID            string        `json:"id"`
	BusinessID    string        `json:"business_id"`
	EventID       string        `json:"event_id"`
	CustomerName  string        `json:"customer_name"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	OrderID       string        `json:"order_id,omitempty"`
	Status        BookingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Product is the slice of inventory the readiness calculator needs.
type Product struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	Stock      int    `json:"current_stock"`
}
