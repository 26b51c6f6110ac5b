package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storecal/internal/model"
)

func TestSlot(t *testing.T) {
	tests := []struct {
		name     string
		max, cur int
		want     model.SlotAvailability
	}{
		{"full", 5, 5, model.SlotAvailability{Max: 5, Current: 5, Remaining: 0, Available: false}},
		{"overbooked", 5, 7, model.SlotAvailability{Max: 5, Current: 7, Remaining: 0, Available: false}},
		{"open", 5, 2, model.SlotAvailability{Max: 5, Current: 2, Remaining: 3, Available: true}},
		{"unbounded", 0, 40, model.SlotAvailability{Current: 40, Available: true, Unbounded: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slot(tt.max, tt.cur))
		})
	}
}

func TestReadinessRiceOil(t *testing.T) {
	recs := []model.StockRecommendation{{Product: "rice", ExtraUnits: 10}, {Product: "oil", ExtraUnits: 5}}
	products := []model.Product{{Name: "Basmati Rice 5kg", Stock: 20}, {Name: "Mustard Oil", Stock: 2}}

	r, ok := Readiness(recs, products)
	assert.True(t, ok)
	assert.Equal(t, model.Readiness{Ready: 1, Total: 2, Percentage: 50}, r)
}

func TestReadinessNoLines(t *testing.T) {
	_, ok := Readiness(nil, []model.Product{{Name: "rice", Stock: 1}})
	assert.False(t, ok)

	_, ok = Readiness([]model.StockRecommendation{{Product: "  ", ExtraUnits: 3}}, nil)
	assert.False(t, ok)
}

func TestReadinessSkipsMalformedAndMissing(t *testing.T) {
	recs := []model.StockRecommendation{
		{Product: "", ExtraUnits: 1},
		{Product: "ghee", ExtraUnits: -2},
		{Product: "Lentils", ExtraUnits: 3},
		{Product: "saffron", ExtraUnits: 1},
	}
	products := []model.Product{{Name: "red lentils", Stock: 3}}

	r, ok := Readiness(recs, products)
	assert.True(t, ok)
	assert.Equal(t, model.Readiness{Ready: 1, Total: 2, Percentage: 50}, r)
}

func TestReadinessRounds(t *testing.T) {
	recs := []model.StockRecommendation{{Product: "a", ExtraUnits: 1}, {Product: "b", ExtraUnits: 1}, {Product: "c", ExtraUnits: 1}}
	products := []model.Product{{Name: "a", Stock: 1}, {Name: "b", Stock: 1}}

	r, _ := Readiness(recs, products)
	assert.Equal(t, 67, r.Percentage)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		days  int
		label string
		tier  model.UrgencyTier
	}{
		{-3, "Overdue", model.TierPast},
		{0, "Today", model.TierCritical},
		{1, "Tomorrow", model.TierHigh},
		{2, "In 2 days", model.TierMedium},
		{7, "In 7 days", model.TierMedium},
		{8, "In 8 days", model.TierLow},
		{365, "In 365 days", model.TierLow},
	}
	for _, tt := range tests {
		got := Classify(tt.days)
		assert.Equal(t, tt.label, got.Label, "days=%d", tt.days)
		assert.Equal(t, tt.tier, got.Tier, "days=%d", tt.days)
	}
}

func TestClassifyMonotonic(t *testing.T) {
	rank := map[model.UrgencyTier]int{
		model.TierPast: 0, model.TierCritical: 1, model.TierHigh: 2, model.TierMedium: 3, model.TierLow: 4,
	}
	prev := rank[Classify(-10).Tier]
	for d := -9; d <= 30; d++ {
		cur := rank[Classify(d).Tier]
		assert.GreaterOrEqual(t, cur, prev, "days=%d", d)
		prev = cur
	}
}
