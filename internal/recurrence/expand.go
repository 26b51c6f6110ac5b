package recurrence

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"storecal/internal/datemath"
	appLog "storecal/internal/log"
	"storecal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	// maxSteps bounds how far a single template is walked from its anchor,
	// including steps that land before the window.
	maxSteps = 100000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone occurrences are converted to and in
	// which DaysUntil is counted. If nil, time.Local is used.
	DisplayLocation *time.Location

	// Window is the half-open range occurrences must start in.
	Window datemath.Window

	// Now is the reference instant for DaysUntil.
	Now time.Time

	// BusinessID, when set, drops rows belonging to any other tenant.
	BusinessID string

	// MaxOccurrencesPerEvent is a safety cap per template. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences and what went wrong on the way.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// Truncated records template ids that hit a cap.
	Truncated []string
	// Invalid records template ids whose rule failed validation; those
	// templates are emitted as single events.
	Invalid []string
}

// Expand turns stored events into concrete occurrences starting inside
// cfg.Window, ordered by start time.
//
//   - Non-recurring events are emitted once if their start is in the window.
//   - Recurring templates are walked forward from their own start so the
//     phase is kept, stopping at the window end, the rule's Until date or
//     its Count.
//   - The template is occurrence 0 and keeps its stored id; later
//     occurrences get parent_index ids.
//
// Duplicate rows (same id) are expanded once.
func Expand(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.Window.End.Before(cfg.Window.Start) {
		return result, errors.New("expand: window end is before window start")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	seen := make(map[string]bool, len(events))
	all := make([]model.Occurrence, 0, len(events))

	for _, ev := range events {
		if cfg.BusinessID != "" && ev.BusinessID != cfg.BusinessID {
			appLog.Error("expand: dropping event of another business", errors.New("tenant mismatch"),
				"id", ev.ID, "business_id", ev.BusinessID, "want", cfg.BusinessID)
			continue
		}
		if ev.ID != "" {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
		}

		if !ev.IsRecurring || ev.Recurrence == nil {
			all = append(all, expandSingleEvent(ev, cfg)...)
			continue
		}

		if verrs := Validate(*ev.Recurrence, ev.Start); len(verrs) > 0 {
			appLog.Error("expand: invalid recurrence rule, treating as single event", verrs, "id", ev.ID)
			result.Invalid = append(result.Invalid, ev.ID)
			all = append(all, expandSingleEvent(ev, cfg)...)
			continue
		}

		occ, hitCap, err := expandRecurringEvent(ev, cfg)
		if err != nil {
			appLog.Error("expand: failed to build rule", err, "id", ev.ID)
			result.Invalid = append(result.Invalid, ev.ID)
			all = append(all, expandSingleEvent(ev, cfg)...)
			continue
		}
		if hitCap {
			result.Truncated = append(result.Truncated, ev.ID)
			appLog.Error("expand: truncated occurrences for event due to cap",
				errors.New("max occurrences reached"),
				"id", ev.ID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		all = append(all, occ...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})

	result.Occurrences = all
	return result, nil
}

func expandSingleEvent(ev model.Event, cfg ExpandConfig) []model.Occurrence {
	if !cfg.Window.Contains(ev.Start) {
		return nil
	}
	return []model.Occurrence{makeOccurrence(ev, ev.Start, 0, cfg)}
}

func expandRecurringEvent(ev model.Event, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	loc := eventLocation(ev, cfg.DisplayLocation)

	next, err := occurrenceTimes(*ev.Recurrence, ev.Start.In(loc))
	if err != nil {
		return nil, false, err
	}

	out := make([]model.Occurrence, 0)
	for idx := 0; ; idx++ {
		if idx >= maxSteps {
			return out, true, nil
		}
		at, ok := next()
		if !ok || !at.Before(cfg.Window.End) {
			break
		}
		if at.Before(cfg.Window.Start) {
			continue
		}
		if len(out) >= cfg.MaxOccurrencesPerEvent {
			return out, true, nil
		}
		out = append(out, makeOccurrence(ev, at, idx, cfg))
	}
	return out, false, nil
}

// occurrenceTimes yields the template start followed by every later step of
// the rule. rrule-go omits the anchor when it does not match a BYDAY list;
// the stored row is still the first occurrence, so it is put back and the
// count adjusted.
func occurrenceTimes(rule model.Rule, anchor time.Time) (func() (time.Time, bool), error) {
	opt, err := ROption(rule, anchor)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}
	it := r.Iterator()
	first, ok := it()
	anchor = anchor.Truncate(time.Second)

	var pending []time.Time
	switch {
	case ok && first.Equal(anchor):
		pending = []time.Time{first}
	case opt.Count == 1:
		pending = []time.Time{anchor}
		it = func() (time.Time, bool) { return time.Time{}, false }
	default:
		if opt.Count > 1 {
			opt.Count--
			if r, err = rrule.NewRRule(opt); err != nil {
				return nil, err
			}
			it = r.Iterator()
			first, ok = it()
		}
		pending = []time.Time{anchor}
		if ok {
			pending = append(pending, first)
		}
	}

	return func() (time.Time, bool) {
		if len(pending) > 0 {
			t := pending[0]
			pending = pending[1:]
			return t, true
		}
		return it()
	}, nil
}

// makeOccurrence copies the template, moves it to start (shifting the end by
// the same delta) and converts it into the display location.
func makeOccurrence(ev model.Event, start time.Time, index int, cfg ExpandConfig) model.Occurrence {
	cp := ev.Clone()
	delta := start.Sub(ev.Start)
	cp.Start = start.In(cfg.DisplayLocation)
	if ev.End != nil {
		end := ev.End.Add(delta).In(cfg.DisplayLocation)
		cp.End = &end
	}

	id := model.OccurrenceID{ParentID: ev.ID, Index: index}
	return model.Occurrence{
		Event:        cp,
		OccurrenceID: id,
		DisplayID:    id.String(),
		Virtual:      id.Virtual(),
		DaysUntil:    datemath.DaysUntil(cp.Start, cfg.Now.In(cfg.DisplayLocation)),
	}
}

// eventLocation resolves the event's own timezone, falling back to the
// display location. Recurrence steps keep wall-clock time in this zone.
func eventLocation(ev model.Event, fallback *time.Location) *time.Location {
	if ev.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(ev.Timezone)
	if err != nil {
		appLog.Error("expand: unknown event timezone; using display zone", err, "id", ev.ID, "timezone", ev.Timezone)
		return fallback
	}
	return loc
}
