package replenishment

import (
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return asOf.AddDate(0, 0, -n)
}

// steadySales returns qty per day for the trailing n days.
func steadySales(qty float64, n int) []domain.SalesEvent {
	events := make([]domain.SalesEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, domain.SalesEvent{Date: daysAgo(i), Quantity: qty})
	}
	return events
}

func newState(onHand float64, cost int64, sales []domain.SalesEvent) domain.SKUState {
	start := daysAgo(90)
	return domain.SKUState{
		StoreID:      1,
		ItemID:       "SKU-1",
		ProductName:  "Hydrating Toner 100ml",
		Category:     "SKINCARE",
		OnHand:       onHand,
		CostPrice:    decimal.NewFromInt(cost),
		SellPrice:    decimal.NewFromInt(cost * 2),
		HistoryStart: &start,
		AsOf:         asOf,
		Sales:        sales,
	}
}

func TestCalculate_DeadStock(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	m, err := calc.Calculate(newState(12, 5, nil))
	require.NoError(t, err)

	assert.Equal(t, 0.0, m.ADS7)
	assert.Equal(t, 0.0, m.ADS14)
	assert.Equal(t, 0.0, m.ADS30)
	assert.Equal(t, domain.StockDead, m.StockClass)
	assert.True(t, m.ValueAtRisk.Equal(decimal.NewFromInt(60)), "value at risk = %s", m.ValueAtRisk)
	assert.Equal(t, 0, m.RecommendedOrderQty)
	assert.Equal(t, DaysOfCoverCap, m.DaysOfCover)
}

func TestCalculate_InactiveSKU(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	m, err := calc.Calculate(newState(0, 5, nil))
	require.NoError(t, err)

	assert.Equal(t, domain.StockInactive, m.StockClass)
	assert.Equal(t, 0, m.RecommendedOrderQty)
	assert.True(t, m.ValueAtRisk.IsZero())
	assert.Equal(t, 0.0, m.DaysOfCover)
}

func TestCalculate_BuyMoreExample(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	m, err := calc.Calculate(newState(1, 5, steadySales(2, 30)))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, m.WeightedADS, 1e-9)
	assert.Equal(t, 3.0, m.ProtectionWindowDays)
	assert.InDelta(t, 6.0, m.TargetStock, 1e-9)
	assert.Equal(t, 5, m.RecommendedOrderQty)
	assert.InDelta(t, 0.5, m.DaysOfCover, 1e-9)
	assert.Equal(t, domain.ConfidenceHigh, m.Confidence)
	assert.Equal(t, domain.StockActive, m.StockClass)
	assert.InDelta(t, 0.0, m.DemandStdDev, 1e-12)
}

func TestCalculate_PendingQuantityReducesOrder(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	state := newState(1, 5, steadySales(2, 30))
	state.PendingQty = 3

	m, err := calc.Calculate(state)
	require.NoError(t, err)
	assert.Equal(t, 2, m.RecommendedOrderQty)

	state.PendingQty = 10
	m, err = calc.Calculate(state)
	require.NoError(t, err)
	assert.Equal(t, 0, m.RecommendedOrderQty)
}

func TestCalculate_SparseSellerUsesElapsedDays(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	state := newState(2, 5, []domain.SalesEvent{{Date: daysAgo(3), Quantity: 7}})
	m, err := calc.Calculate(state)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.ADS7, 1e-12)
	assert.InDelta(t, 0.5, m.ADS14, 1e-12)
	assert.InDelta(t, 7.0/30.0, m.ADS30, 1e-12)
	assert.InDelta(t, 0.5*1+0.3*0.5+0.2*7.0/30.0, m.WeightedADS, 1e-12)
	assert.Less(t, m.WeightedADS, 7.0)
}

func TestCalculate_IgnoresEventsOutsideWindow(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	state := newState(5, 5, []domain.SalesEvent{
		{Date: asOf.AddDate(0, 0, 1), Quantity: 100},
		{Date: daysAgo(30), Quantity: 100},
		{Date: daysAgo(6), Quantity: 7},
	})
	m, err := calc.Calculate(state)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.ADS7, 1e-12)
	assert.InDelta(t, 7.0/30.0, m.ADS30, 1e-12)
}

func TestCalculate_StdDevIsZeroFilled(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	m, err := calc.Calculate(newState(5, 5, []domain.SalesEvent{{Date: daysAgo(20), Quantity: 30}}))
	require.NoError(t, err)

	// mean 1 over 30 buckets, one bucket at 30
	assert.InDelta(t, 0.2, m.WeightedADS, 1e-12)
	assert.InDelta(t, math.Sqrt(29), m.DemandStdDev, 1e-9)
	assert.InDelta(t, 1.65*math.Sqrt(29), m.SafetyStock, 1e-9)
}

func TestCalculate_ConfidenceTiers(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	tests := []struct {
		name    string
		history int
		want    domain.ConfidenceTier
	}{
		{"three days", 3, domain.ConfidenceLow},
		{"six days", 6, domain.ConfidenceLow},
		{"seven days", 7, domain.ConfidenceMedium},
		{"twenty one days", 21, domain.ConfidenceMedium},
		{"twenty two days", 22, domain.ConfidenceHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newState(1, 5, steadySales(1, tt.history))
			start := daysAgo(tt.history - 1)
			state.HistoryStart = &start

			m, err := calc.Calculate(state)
			require.NoError(t, err)
			assert.Equal(t, tt.history, m.HistoryDays)
			assert.Equal(t, tt.want, m.Confidence)
		})
	}
}

func TestCalculate_HistoryFallsBackToEarliestSale(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	state := newState(1, 5, []domain.SalesEvent{{Date: daysAgo(1), Quantity: 1}, {Date: daysAgo(4), Quantity: 1}})
	state.HistoryStart = nil

	m, err := calc.Calculate(state)
	require.NoError(t, err)
	assert.Equal(t, 5, m.HistoryDays)
	assert.Equal(t, domain.ConfidenceLow, m.Confidence)
}

func TestCalculate_CategoryWindowOverride(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	state := newState(1, 5, steadySales(2, 30))
	state.ProtectionWindowDays = 7

	m, err := calc.Calculate(state)
	require.NoError(t, err)
	assert.Equal(t, 7.0, m.ProtectionWindowDays)
	assert.InDelta(t, 14.0, m.TargetStock, 1e-9)
	assert.Equal(t, 13, m.RecommendedOrderQty)
}

func TestCalculate_RejectsInvalidInput(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	tests := []struct {
		name   string
		mutate func(*domain.SKUState)
	}{
		{"negative stock", func(s *domain.SKUState) { s.OnHand = -1 }},
		{"nan stock", func(s *domain.SKUState) { s.OnHand = math.NaN() }},
		{"negative pending", func(s *domain.SKUState) { s.PendingQty = -2 }},
		{"negative cost", func(s *domain.SKUState) { s.CostPrice = decimal.NewFromInt(-1) }},
		{"negative sale", func(s *domain.SKUState) { s.Sales = []domain.SalesEvent{{Date: daysAgo(1), Quantity: -3}} }},
		{"missing as-of", func(s *domain.SKUState) { s.AsOf = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newState(1, 5, steadySales(1, 10))
			tt.mutate(&state)
			_, err := calc.Calculate(state)
			assert.Error(t, err)
		})
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	calc := NewCalculator(DefaultConfig())
	state := newState(4, 5, []domain.SalesEvent{
		{Date: daysAgo(0), Quantity: 3},
		{Date: daysAgo(2), Quantity: 1},
		{Date: daysAgo(9), Quantity: 5},
		{Date: daysAgo(20), Quantity: 2},
	})

	first, err := calc.Calculate(state)
	require.NoError(t, err)
	second, err := calc.Calculate(state)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDaysOfCover_AlwaysFiniteAndCapped(t *testing.T) {
	for _, ads := range []float64{0, 1e-300, 1e-9, 0.01, 1, 250} {
		for _, stock := range []float64{0, 1, 12, 1e6} {
			cover := DaysOfCover(stock, ads)
			assert.False(t, math.IsNaN(cover), "ads=%v stock=%v", ads, stock)
			assert.False(t, math.IsInf(cover, 0), "ads=%v stock=%v", ads, stock)
			assert.LessOrEqual(t, cover, DaysOfCoverCap)
			assert.GreaterOrEqual(t, cover, 0.0)
		}
	}
}

func TestSafetyStockForms(t *testing.T) {
	assert.Equal(t, 1.0, GuardrailSafetyStock(0))
	assert.Equal(t, 1.0, GuardrailSafetyStock(0.49))
	assert.Equal(t, 3.0, GuardrailSafetyStock(0.5))
	assert.Equal(t, 3.0, GuardrailSafetyStock(1))
	assert.Equal(t, 6.0, GuardrailSafetyStock(2))
	assert.Equal(t, 8.0, GuardrailSafetyStock(2.4))

	assert.Equal(t, 6.0, StrategicSafetyStock(2, 1, 3, 1.65))
	assert.InDelta(t, 16.5, StrategicSafetyStock(2, 10, 3, 1.65), 1e-9)
	assert.Equal(t, 0.0, StrategicSafetyStock(0, 0, 3, 1.65))

	assert.Equal(t, 12.0, ReorderPoint(2, 3, 6))
}

func TestRoundToPack(t *testing.T) {
	assert.Equal(t, 0, RoundToPack(0, 6, 10))
	assert.Equal(t, 0, RoundToPack(-4, 6, 10))
	assert.Equal(t, 5, RoundToPack(5, 0, 0))
	assert.Equal(t, 6, RoundToPack(5, 6, 0))
	assert.Equal(t, 10, RoundToPack(5, 1, 10))
	assert.Equal(t, 12, RoundToPack(11, 6, 10))
	assert.Equal(t, 24, RoundToPack(19, 12, 0))
}

func TestOrderQuantity_TrimsFloatNoise(t *testing.T) {
	assert.Equal(t, 5, OrderQuantity(6.0000000000001, 1, 0, 0, 0))
	assert.Equal(t, 6, OrderQuantity(6.01, 1, 0, 0, 0))
	assert.Equal(t, 0, OrderQuantity(2, 5, 0, 0, 0))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ProtectionWindowDays = 0
	cfg.OverstockMultiple = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protection window")
	assert.Contains(t, err.Error(), "overstock multiple")
}
