package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "storecal/internal/log"
	"storecal/internal/model"
	"storecal/internal/recurrence"
)

const productID = "-//storecal//calendar//EN"

const uidDomain = "@storecal"

func newCalendar(name string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	return cal
}

// ExportOccurrences renders expanded occurrences, one VEVENT each. Virtual
// occurrences keep their display id in the UID so calendar clients see a
// stable identity across exports.
func ExportOccurrences(name string, occ []model.Occurrence, now time.Time) string {
	cal := newCalendar(name)
	for _, o := range occ {
		ve := cal.AddEvent(o.DisplayID + uidDomain)
		fillEvent(ve, o.Event, now)
		if o.DisplayColor != "" {
			ve.SetColor(o.DisplayColor)
		}
	}
	return cal.Serialize()
}

// ExportEvents renders stored rows. Recurring templates carry their rule as
// an RRULE so clients expand them themselves.
func ExportEvents(name string, events []model.Event, now time.Time) string {
	cal := newCalendar(name)
	for _, e := range events {
		ve := cal.AddEvent(e.ID + uidDomain)
		fillEvent(ve, e, now)
		if e.IsRecurring && e.Recurrence != nil {
			rr, err := recurrence.RRuleString(*e.Recurrence, e.Start)
			if err != nil {
				appLog.Error("ics: exporting recurring event without its rule", err, "id", e.ID)
				continue
			}
			ve.AddProperty(ical.ComponentPropertyRrule, rr)
		}
	}
	return cal.Serialize()
}

func fillEvent(ve *ical.VEvent, e model.Event, now time.Time) {
	ve.SetDtStampTime(now)
	if !e.UpdatedAt.IsZero() {
		ve.SetModifiedAt(e.UpdatedAt)
	}
	ve.SetSummary(e.Title)
	if e.Description != "" {
		ve.SetDescription(e.Description)
	}
	ve.SetProperty(ical.ComponentPropertyCategories, string(e.Type))

	if e.AllDay {
		ve.SetAllDayStartAt(e.Start)
		end := e.Start.AddDate(0, 0, 1)
		if e.End != nil && e.End.After(end) {
			end = *e.End
		}
		ve.SetAllDayEndAt(end)
	} else {
		ve.SetStartAt(e.Start)
		if e.End != nil {
			ve.SetEndAt(*e.End)
		}
	}

	switch e.Status {
	case model.StatusCancelled:
		ve.SetStatus(ical.ObjectStatusCancelled)
	case model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted:
		ve.SetStatus(ical.ObjectStatusConfirmed)
	default:
		ve.SetStatus(ical.ObjectStatusTentative)
	}
}
