package replenishment

import (
	"testing"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTemplateRationale_UsesTraceNumbersOnly(t *testing.T) {
	states := map[string]domain.SKUState{
		"buy more": newState(1, 5, steadySales(2, 30)),
		"buy less": newState(40, 10, steadySales(1, 30)),
		"dead":     newState(12, 5, nil),
		"monitor":  newState(5, 5, steadySales(1, 30)),
	}

	for name, state := range states {
		t.Run(name, func(t *testing.T) {
			trace := NewGuard().Reconstruct(snapshotFor(t, state))
			text := TemplateRationale(trace)
			assert.NotEmpty(t, text)
			assert.True(t, ProseMatchesTrace(text, trace), text)
		})
	}
}

func TestTemplateRationale_Contents(t *testing.T) {
	trace := NewGuard().Reconstruct(snapshotFor(t, newState(1, 5, steadySales(2, 30))))
	text := TemplateRationale(trace)

	assert.Contains(t, text, "Order 5 units")
	assert.Contains(t, text, "0.5 days of cover")
	assert.Contains(t, text, "CRITICAL")

	dead := NewGuard().Reconstruct(snapshotFor(t, newState(12, 5, nil)))
	assert.Contains(t, TemplateRationale(dead), "60.00")
}

func TestTemplateRationale_PendingCoversGap(t *testing.T) {
	state := newState(1, 5, steadySales(2, 30))
	state.PendingQty = 10

	rec := snapshotFor(t, state)
	assert.Equal(t, domain.InsightBuyMore, rec.InsightCategory)
	assert.Equal(t, 0, rec.RecommendedOrderQty)

	trace := NewGuard().Reconstruct(rec)
	text := TemplateRationale(trace)

	assert.NotContains(t, text, "Order 0 units")
	assert.Contains(t, text, "10 units already pending cover the gap")
	assert.True(t, ProseMatchesTrace(text, trace), text)
}

func TestTemplateRationale_StatesLowConfidenceCaveat(t *testing.T) {
	state := newState(1, 5, steadySales(2, 3))
	start := daysAgo(2)
	state.HistoryStart = &start

	trace := NewGuard().Reconstruct(snapshotFor(t, state))
	text := TemplateRationale(trace)

	assert.Contains(t, text, "downgraded to MONITOR")
	assert.True(t, ProseMatchesTrace(text, trace), text)
}

func TestProseMatchesTrace(t *testing.T) {
	trace := NewGuard().Reconstruct(snapshotFor(t, newState(1, 5, steadySales(2, 30))))

	assert.True(t, ProseMatchesTrace("You sell about 2 units a day and have 1 left, so order 5.", trace))
	assert.False(t, ProseMatchesTrace("Order 17 units to be safe.", trace))
	assert.False(t, ProseMatchesTrace("Cover is 0.8 days.", trace))
	assert.False(t, ProseMatchesTrace("   ", trace))

	rich := trace
	rich.CurrentStock = 1200
	assert.True(t, ProseMatchesTrace("There are 1,200 units on hand.", rich))
}
