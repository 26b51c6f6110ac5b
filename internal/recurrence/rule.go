package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"storecal/internal/model"
)

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Validate checks a recurrence rule against the template start it belongs to.
func Validate(rule model.Rule, start time.Time) model.ValidationErrors {
	var errs model.ValidationErrors

	if !rule.Frequency.Valid() {
		errs = append(errs, model.ValidationError{Field: "recurrence_rule.frequency", Msg: fmt.Sprintf("unrecognized frequency %q", rule.Frequency)})
	}
	if rule.Interval < 1 {
		errs = append(errs, model.ValidationError{Field: "recurrence_rule.interval", Msg: "must be at least 1"})
	}
	if rule.Count < 0 {
		errs = append(errs, model.ValidationError{Field: "recurrence_rule.count", Msg: "must not be negative"})
	}
	if rule.Until != nil && civilDate(*rule.Until).Before(civilDate(start)) {
		errs = append(errs, model.ValidationError{Field: "recurrence_rule.until", Msg: "must not be before the start date"})
	}
	if len(rule.Weekdays) > 0 && rule.Frequency != model.FreqWeekly {
		errs = append(errs, model.ValidationError{Field: "recurrence_rule.weekdays", Msg: "only allowed for weekly rules"})
	}
	for _, wd := range rule.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			errs = append(errs, model.ValidationError{Field: "recurrence_rule.weekdays", Msg: fmt.Sprintf("weekday %d out of range 0-6", wd)})
		}
	}
	return errs
}

// civilDate drops time and location, keeping the written Y-M-D.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ROption translates a stored rule anchored at start into rrule-go options.
//
// Monthly rules anchored on the 29th-31st and yearly rules anchored on
// Feb 29 clamp to the last valid day of shorter months instead of skipping
// them; this is expressed as BYMONTHDAY=28..d with BYSETPOS=-1.
func ROption(rule model.Rule, start time.Time) (rrule.ROption, error) {
	opt := rrule.ROption{
		Dtstart:  start,
		Interval: rule.Interval,
		Count:    rule.Count,
		Wkst:     rrule.SU,
	}

	switch rule.Frequency {
	case model.FreqDaily:
		opt.Freq = rrule.DAILY
	case model.FreqWeekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range rule.Weekdays {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
		}
	case model.FreqMonthly:
		opt.Freq = rrule.MONTHLY
		if d := start.Day(); d > 28 {
			opt.Bymonthday = dayRange(28, d)
			opt.Bysetpos = []int{-1}
		}
	case model.FreqYearly:
		opt.Freq = rrule.YEARLY
		if start.Month() == time.February && start.Day() == 29 {
			opt.Bymonth = []int{2}
			opt.Bymonthday = []int{28, 29}
			opt.Bysetpos = []int{-1}
		}
	default:
		return opt, fmt.Errorf("recurrence: unsupported frequency %q", rule.Frequency)
	}

	if rule.Until != nil {
		u := *rule.Until
		opt.Until = time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, start.Location())
	}
	return opt, nil
}

func dayRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for d := from; d <= to; d++ {
		out = append(out, d)
	}
	return out
}

// RRuleString renders the rule as an iCalendar RRULE value.
func RRuleString(rule model.Rule, start time.Time) (string, error) {
	opt, err := ROption(rule, start)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// FromRRule converts an iCalendar RRULE value into a stored rule. Only the
// subset the calendar can store round-trips: FREQ, INTERVAL, COUNT, UNTIL and
// BYDAY on weekly rules.
func FromRRule(value string) (model.Rule, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return model.Rule{}, err
	}

	var rule model.Rule
	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = model.FreqDaily
	case rrule.WEEKLY:
		rule.Frequency = model.FreqWeekly
	case rrule.MONTHLY:
		rule.Frequency = model.FreqMonthly
	case rrule.YEARLY:
		rule.Frequency = model.FreqYearly
	default:
		return model.Rule{}, fmt.Errorf("recurrence: unsupported FREQ in %q", value)
	}

	rule.Interval = opt.Interval
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	rule.Count = opt.Count
	if !opt.Until.IsZero() {
		u := opt.Until
		rule.Until = &u
	}
	if len(opt.Byweekday) > 0 {
		if rule.Frequency != model.FreqWeekly {
			return model.Rule{}, errors.New("recurrence: BYDAY is only supported on weekly rules")
		}
		for _, wd := range opt.Byweekday {
			rule.Weekdays = append(rule.Weekdays, fromRRuleWeekday(wd))
		}
	}
	return rule, nil
}

func fromRRuleWeekday(wd rrule.Weekday) time.Weekday {
	// rrule-go numbers weekdays Monday=0.
	return time.Weekday((wd.Day() + 1) % 7)
}
