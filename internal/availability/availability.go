// Package availability computes the derived capacity, stock readiness and
// urgency fields shown next to an occurrence.
package availability

import (
	"fmt"
	"math"
	"strings"

	"storecal/internal/model"
)

// Slot reports the capacity of a bookable occurrence. max <= 0 means the slot
// has no limit and is always available.
func Slot(max, current int) model.SlotAvailability {
	if current < 0 {
		current = 0
	}
	if max <= 0 {
		return model.SlotAvailability{Current: current, Available: true, Unbounded: true}
	}
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return model.SlotAvailability{
		Max:       max,
		Current:   current,
		Remaining: remaining,
		Available: remaining > 0,
	}
}

// Readiness compares each stock recommendation with the inventory. A line is
// ready when a product whose name contains the recommended product name
// (case-insensitive) has at least ExtraUnits in stock; the first matching
// product decides.
//
// Lines without a product name or with a negative unit count are skipped.
// ok is false when no usable line remains: readiness is then undefined
// rather than 0%.
func Readiness(recs []model.StockRecommendation, products []model.Product) (model.Readiness, bool) {
	var r model.Readiness
	for _, rec := range recs {
		name := strings.ToLower(strings.TrimSpace(rec.Product))
		if name == "" || rec.ExtraUnits < 0 {
			continue
		}
		r.Total++
		for _, p := range products {
			if strings.Contains(strings.ToLower(p.Name), name) {
				if p.Stock >= rec.ExtraUnits {
					r.Ready++
				}
				break
			}
		}
	}
	if r.Total == 0 {
		return model.Readiness{}, false
	}
	r.Percentage = int(math.Round(float64(r.Ready) / float64(r.Total) * 100))
	return r, true
}

type band struct {
	// maxDays is the inclusive upper bound of the band.
	maxDays int
	tier    model.UrgencyTier
	label   func(days int) string
}

var bands = []band{
	{-1, model.TierPast, func(int) string { return "Overdue" }},
	{0, model.TierCritical, func(int) string { return "Today" }},
	{1, model.TierHigh, func(int) string { return "Tomorrow" }},
	{7, model.TierMedium, inDays},
	{math.MaxInt, model.TierLow, inDays},
}

func inDays(d int) string { return fmt.Sprintf("In %d days", d) }

// Classify maps days-until to a badge. Label and tier are read from the same
// band.
func Classify(daysUntil int) model.Urgency {
	for _, b := range bands {
		if daysUntil <= b.maxDays {
			return model.Urgency{Label: b.label(daysUntil), Tier: b.tier}
		}
	}
	return model.Urgency{Label: inDays(daysUntil), Tier: model.TierLow}
}
