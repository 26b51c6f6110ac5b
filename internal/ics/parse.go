package ics

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "storecal/internal/log"
	"storecal/internal/model"
	"storecal/internal/recurrence"
)

// importNamespace scopes the ids derived from feed UIDs.
var importNamespace = uuid.MustParse("6f1c9a52-3d0e-4f4b-9a57-0c2e8d1b7a44")

// EventID derives the stored id of a feed event. Re-importing the same UID
// from the same feed yields the same id, so imports are upserts.
func EventID(feedID, uid string) string {
	return uuid.NewHash(sha256.New(), importNamespace, []byte(feedID+"\x00"+uid), 8).String()
}

// Parse turns the VEVENTs of one feed body into cultural_event templates.
// Date-only events are placed on their calendar date in loc. Events without
// a UID, cancelled events and RECURRENCE-ID overrides are skipped; an RRULE
// the calendar cannot store imports the event as a single occurrence.
func Parse(feed Feed, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse feed %s: %w", feed.ID, err)
	}

	var out []model.Event
	for _, ve := range cal.Events() {
		ev, ok, err := parseVEvent(feed, ve, loc)
		if err != nil {
			appLog.Error("ics: skipping vevent", err, "feed", feed.ID)
			continue
		}
		if ok {
			out = append(out, ev)
		}
	}
	appLog.Info("ics: feed parsed", "feed", feed.ID, "events", len(out))
	return out, nil
}

func parseVEvent(feed Feed, ve *ical.VEvent, loc *time.Location) (model.Event, bool, error) {
	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return model.Event{}, false, errors.New("missing UID")
	}
	if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
		return model.Event{}, false, nil
	}
	if strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), string(ical.ObjectStatusCancelled)) {
		return model.Event{}, false, nil
	}

	title := propValue(ve, ical.ComponentPropertySummary)
	if title == "" {
		title = "Untitled"
	}

	ev := model.Event{
		ID:          EventID(feed.ID, uid),
		BusinessID:  feed.BusinessID,
		Title:       title,
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Type:        model.TypeCulturalEvent,
		Status:      model.StatusScheduled,
		IsPublic:    true,
		Cultural: &model.CulturalDetails{
			DemandIncreasePct: feed.DemandIncreasePct,
			TargetCommunities: append([]string(nil), feed.Communities...),
		},
	}

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return model.Event{}, false, fmt.Errorf("%s: missing DTSTART", uid)
	}
	if isDateValue(start) {
		d, err := parseDate(start.Value, loc)
		if err != nil {
			return model.Event{}, false, fmt.Errorf("%s: DTSTART: %w", uid, err)
		}
		ev.AllDay = true
		ev.Start = d
		ev.Timezone = loc.String()
		end := d.AddDate(0, 0, 1)
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
			if e, err := parseDate(p.Value, loc); err == nil && e.After(d) {
				end = e
			}
		}
		ev.End = &end
	} else {
		t, err := ve.GetStartAt()
		if err != nil {
			return model.Event{}, false, fmt.Errorf("%s: DTSTART: %w", uid, err)
		}
		ev.Start = t
		ev.Timezone = t.Location().String()
		if e, err := ve.GetEndAt(); err == nil && e.After(t) {
			ev.End = &e
		}
	}

	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		rule, err := recurrence.FromRRule(raw)
		if err == nil {
			err = recurrence.Validate(rule, ev.Start).Err()
		}
		if err != nil {
			appLog.Error("ics: unsupported RRULE, importing single occurrence", err, "feed", feed.ID, "uid", uid)
		} else {
			ev.IsRecurring = true
			ev.Recurrence = &rule
		}
	}

	if cats := propValue(ve, ical.ComponentPropertyCategories); cats != "" {
		for _, c := range strings.Split(cats, ",") {
			if c = strings.TrimSpace(c); c != "" {
				ev.Cultural.AffectedProducts = append(ev.Cultural.AffectedProducts, c)
			}
		}
	}
	return ev, true, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

// isDateValue reports VALUE=DATE or a value without a time part.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) > 8 {
		v = v[:8]
	}
	return time.ParseInLocation("20060102", v, loc)
}
