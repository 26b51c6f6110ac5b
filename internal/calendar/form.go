package calendar

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"storecal/internal/model"
	"storecal/internal/recurrence"
)

const (
	formDateLayout = "2006-01-02"
	formTimeLayout = "15:04"
)

// EventForm is the flat create/edit form. Date and time arrive as separate
// strings and are combined in the business timezone.
type EventForm struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Type        string `json:"type" validate:"required,oneof=business_event cultural_event delivery_slot appointment store_hours"`

	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Time    string `json:"time" validate:"omitempty,datetime=15:04"`
	EndDate string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	EndTime string `json:"end_time" validate:"omitempty,datetime=15:04"`
	AllDay  bool   `json:"all_day"`

	Timezone string `json:"timezone" validate:"omitempty,timezone"`
	Status   string `json:"status" validate:"omitempty,oneof=scheduled confirmed in_progress completed cancelled no_show"`
	Priority int    `json:"priority" validate:"gte=0"`
	IsPublic bool   `json:"is_public"`
	Color    string `json:"color" validate:"omitempty,hexcolor"`
	Emoji    string `json:"emoji" validate:"max=16"`

	IsRecurring bool   `json:"is_recurring"`
	Frequency   string `json:"frequency" validate:"omitempty,oneof=daily weekly monthly yearly"`
	Interval    int    `json:"interval" validate:"gte=0"`
	Until       string `json:"until" validate:"omitempty,datetime=2006-01-02"`
	Count       int    `json:"count" validate:"gte=0"`
	Weekdays    []int  `json:"weekdays" validate:"dive,gte=0,lte=6"`

	CustomerName  string `json:"customer_name" validate:"max=200"`
	CustomerPhone string `json:"customer_phone" validate:"max=40"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	OrderID       string `json:"order_id"`
	MaxBookings   int    `json:"max_bookings" validate:"gte=0"`

	Cultural *model.CulturalDetails `json:"cultural,omitempty"`
}

// BookingRequest carries the customer side of a booking.
type BookingRequest struct {
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerPhone string `json:"customer_phone" validate:"max=40"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	OrderID       string `json:"order_id"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so errors line up with the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// checkStruct runs struct tags and converts the result to ValidationErrors.
func checkStruct(v *validator.Validate, s any) model.ValidationErrors {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.ValidationErrors{{Field: "", Msg: err.Error()}}
	}
	out := make(model.ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, model.ValidationError{Field: fieldPath(fe), Msg: fieldMessage(fe)})
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	// Namespace is "EventForm.weekdays[2]"; drop the struct name.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match layout %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "hexcolor":
		return "must be a hex color"
	case "timezone":
		return "unknown timezone"
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// ToEvent translates the form into an Event for businessID. loc is the
// business timezone used when the form does not name one.
func (f EventForm) ToEvent(v *validator.Validate, businessID string, loc *time.Location) (model.Event, model.ValidationErrors) {
	if errs := checkStruct(v, f); len(errs) > 0 {
		return model.Event{}, errs
	}
	if f.Timezone != "" {
		// Already checked by the timezone tag.
		if l, err := time.LoadLocation(f.Timezone); err == nil {
			loc = l
		}
	}

	var errs model.ValidationErrors
	start, err := combine(f.Date, f.Time, f.AllDay, loc)
	if err != nil {
		errs = append(errs, model.ValidationError{Field: "time", Msg: err.Error()})
	}

	ev := model.Event{
		BusinessID:  businessID,
		Title:       strings.TrimSpace(f.Title),
		Description: f.Description,
		Type:        model.EventType(f.Type),
		Start:       start,
		AllDay:      f.AllDay,
		Timezone:    loc.String(),
		Status:      model.EventStatus(f.Status),
		Priority:    f.Priority,
		IsPublic:    f.IsPublic,
		Color:       f.Color,
		Emoji:       f.Emoji,
		IsRecurring: f.IsRecurring,
		Cultural:    f.Cultural,
	}
	if ev.Status == "" {
		ev.Status = model.StatusScheduled
	}

	if f.EndDate != "" || f.EndTime != "" {
		endDate := f.EndDate
		if endDate == "" {
			endDate = f.Date
		}
		end, err := combine(endDate, f.EndTime, f.AllDay, loc)
		switch {
		case err != nil:
			errs = append(errs, model.ValidationError{Field: "end_time", Msg: err.Error()})
		case f.AllDay && f.EndTime == "":
			// An all-day range covers its last date.
			end = end.AddDate(0, 0, 1)
			ev.End = &end
		default:
			ev.End = &end
		}
	}

	if ev.Type.Bookable() {
		ev.Booking = &model.BookingDetails{
			CustomerName:  f.CustomerName,
			CustomerPhone: f.CustomerPhone,
			CustomerEmail: f.CustomerEmail,
			OrderID:       f.OrderID,
			MaxBookings:   f.MaxBookings,
		}
	}

	if f.IsRecurring {
		if f.Frequency == "" {
			errs = append(errs, model.ValidationError{Field: "frequency", Msg: "required when is_recurring is set"})
		} else {
			rule := model.Rule{
				Frequency: model.Frequency(f.Frequency),
				Interval:  f.Interval,
				Count:     f.Count,
			}
			if rule.Interval == 0 {
				rule.Interval = 1
			}
			if f.Until != "" {
				u, _ := time.ParseInLocation(formDateLayout, f.Until, loc)
				rule.Until = &u
			}
			for _, wd := range f.Weekdays {
				rule.Weekdays = append(rule.Weekdays, time.Weekday(wd))
			}
			if err == nil {
				errs = append(errs, recurrence.Validate(rule, start)...)
			}
			ev.Recurrence = &rule
		}
	}

	if err == nil {
		errs = append(errs, model.ValidateTimes(ev)...)
	}
	if len(errs) > 0 {
		return model.Event{}, errs
	}
	return ev, nil
}

// combine joins a date and an optional HH:MM into one instant in loc.
// All-day events and events without a time start at midnight.
func combine(date, clock string, allDay bool, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(formDateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}
	if allDay || clock == "" {
		return d, nil
	}
	c, err := time.Parse(formTimeLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", clock)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc), nil
}
