package replenishment

import (
	"testing"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotFor(t *testing.T, state domain.SKUState) domain.Recommendation {
	t.Helper()
	cfg := DefaultConfig()
	m, err := NewCalculator(cfg).Calculate(state)
	require.NoError(t, err)
	return NewSnapshot(state, m, NewClassifier(cfg).Classify(state, m), uuid.New(), asOf)
}

func TestGuard_ReconstructMatchesSnapshot(t *testing.T) {
	rec := snapshotFor(t, newState(1, 5, steadySales(2, 30)))

	trace := NewGuard().Reconstruct(rec)

	assert.True(t, trace.IntegrityOK)
	assert.Empty(t, trace.Discrepancies)
	assert.Equal(t, 5, trace.RecommendedOrderQty)
	assert.Equal(t, 2.0, trace.WeightedADS)
	assert.Equal(t, 6.0, trace.TargetStock)
	assert.Equal(t, 0.5, trace.DaysOfCover)
	assert.Equal(t, domain.InsightBuyMore, trace.InsightCategory)
	assert.Equal(t, domain.RiskCritical, trace.RiskState)
	assert.Equal(t, rec.ID, trace.RecommendationID)
}

func TestGuard_CorrectsContradictoryQuantity(t *testing.T) {
	rec := snapshotFor(t, newState(1, 5, steadySales(2, 30)))
	rec.RecommendedOrderQty = 9

	trace := NewGuard().Reconstruct(rec)

	assert.False(t, trace.IntegrityOK)
	assert.Equal(t, 5, trace.RecommendedOrderQty)
	require.Len(t, trace.Discrepancies, 1)
	assert.Equal(t, "recommended_order_quantity", trace.Discrepancies[0].Field)
	assert.Equal(t, 9.0, trace.Discrepancies[0].Stored)
	assert.Equal(t, 5.0, trace.Discrepancies[0].Derived)
}

func TestGuard_FlagsDriftedDerivedFields(t *testing.T) {
	rec := snapshotFor(t, newState(1, 5, steadySales(2, 30)))
	rec.TargetStock = 7
	rec.DaysOfCover = 3

	discrepancies := NewGuard().Check(rec)

	fields := make([]string, 0, len(discrepancies))
	for _, d := range discrepancies {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"target_stock", "days_of_cover"}, fields)
}

func TestGuard_IgnoresLiveState(t *testing.T) {
	state := newState(1, 5, steadySales(2, 30))
	rec := snapshotFor(t, state)
	before := NewGuard().Reconstruct(rec)

	// live stock moves; the stored row does not
	state.OnHand = 50
	state.Sales = nil

	after := NewGuard().Reconstruct(rec)
	assert.Equal(t, before, after)
}

func TestGuard_DeadStockTrace(t *testing.T) {
	rec := snapshotFor(t, newState(12, 5, nil))

	trace := NewGuard().Reconstruct(rec)

	assert.True(t, trace.IntegrityOK)
	assert.Equal(t, domain.StockDead, trace.StockClass)
	assert.Equal(t, 0, trace.RecommendedOrderQty)
	assert.Equal(t, "60", trace.ValueAtRisk.String())
}

func TestSnapshotHash_IgnoresIdentity(t *testing.T) {
	state := newState(1, 5, steadySales(2, 30))
	a := snapshotFor(t, state)
	b := snapshotFor(t, state)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.SnapshotHash, b.SnapshotHash)

	state.OnHand = 2
	c := snapshotFor(t, state)
	assert.NotEqual(t, a.SnapshotHash, c.SnapshotHash)
}

func TestMateriallyChanged(t *testing.T) {
	base := snapshotFor(t, newState(1, 5, steadySales(2, 30)))

	same := base
	assert.False(t, MateriallyChanged(base, same, 0.05))

	drift := base
	drift.WeightedADS = base.WeightedADS * 1.04
	assert.False(t, MateriallyChanged(base, drift, 0.05))

	drift.WeightedADS = base.WeightedADS * 1.2
	assert.True(t, MateriallyChanged(base, drift, 0.05))

	qty := base
	qty.RecommendedOrderQty++
	assert.True(t, MateriallyChanged(base, qty, 0.05))

	stock := base
	stock.CurrentStock = 3
	assert.True(t, MateriallyChanged(base, stock, 0.05))
}
