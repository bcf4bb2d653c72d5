package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/pipeline/replenishment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGenerate_WorkedExamples(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()

	res := f.generate(t, false)

	assert.ElementsMatch(t, []string{"SKU-BUY", "SKU-DEAD", "SKU-LESS"}, itemIDs(res.Written))
	assert.Equal(t, []string{"SKU-GONE"}, res.Inactive)
	assert.Empty(t, res.Failures)
	assert.Equal(t, domain.RunCompleted, res.Run.Status)
	assert.Equal(t, 4, res.Run.Requested)
	assert.Equal(t, 3, res.Run.Written)

	cur := f.current(t)
	require.Len(t, cur, 3)

	buy := cur["SKU-BUY"]
	assert.Equal(t, domain.InsightBuyMore, buy.InsightCategory)
	assert.Equal(t, domain.RiskCritical, buy.RiskState)
	assert.Equal(t, 5, buy.RecommendedOrderQty)
	assert.Equal(t, domain.ConfidenceHigh, buy.Confidence)
	assert.InDelta(t, 0.5, buy.DaysOfCover, 1e-9)
	assert.Equal(t, domain.FeedbackPending, buy.FeedbackStatus)
	assert.Equal(t, domain.RationaleTemplate, buy.RationaleSource)
	assert.Contains(t, buy.Rationale, "Order 5 units")

	dead := cur["SKU-DEAD"]
	assert.Equal(t, domain.StockDead, dead.StockClass)
	assert.NotEqual(t, domain.InsightBuyMore, dead.InsightCategory)
	assert.Equal(t, 0, dead.RecommendedOrderQty)
	assert.True(t, dead.ValueAtRisk.Equal(decimal.NewFromInt(60)), "value at risk = %s", dead.ValueAtRisk)

	less := cur["SKU-LESS"]
	assert.Equal(t, domain.InsightBuyLess, less.InsightCategory)
	assert.True(t, less.BlockedCapital.Equal(decimal.NewFromInt(400)), "blocked capital = %s", less.BlockedCapital)

	_, ok := cur["SKU-GONE"]
	assert.False(t, ok, "inactive SKUs get no snapshot")
}

func TestGenerate_RepeatWithoutForceWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()

	first := f.generate(t, false)
	before := f.current(t)

	second := f.generate(t, false)

	assert.Empty(t, second.Written)
	assert.ElementsMatch(t, []string{"SKU-BUY", "SKU-DEAD", "SKU-LESS"}, second.Unchanged)
	assert.Equal(t, 4, second.Run.Skipped)
	assert.Len(t, f.mem.All(), len(first.Written))

	after := f.current(t)
	for itemID, rec := range before {
		assert.Equal(t, rec.ID, after[itemID].ID)
		assert.Equal(t, rec.RecommendedOrderQty, after[itemID].RecommendedOrderQty)
	}
}

func TestGenerate_ForceAlwaysWrites(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()

	f.generate(t, false)
	forced := f.generate(t, true)

	assert.Len(t, forced.Written, 3)
	assert.True(t, forced.Run.Forced)
	for _, rec := range forced.Written {
		assert.True(t, rec.Forced)
	}
	assert.Len(t, f.mem.All(), 6)
}

func TestGenerate_MaterialChangeWritesOnlyThatSKU(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)

	f.mem.SetStock(testStore, "SKU-BUY", 50)
	f.clock.Advance(time.Hour)
	res := f.generate(t, false)

	assert.Equal(t, []string{"SKU-BUY"}, itemIDs(res.Written))
	assert.Equal(t, 0, f.current(t)["SKU-BUY"].RecommendedOrderQty)
}

func TestGenerate_SKUGoingInactiveLeavesEveryReport(t *testing.T) {
	f := newFixture(t)
	f.seedSKU("SKU-BUY", "Skincare", 1, 10, 2, 30)
	f.generate(t, false)
	ctx := context.Background()

	f.mem.SetStock(testStore, "SKU-BUY", 0)
	f.clock.Advance(40 * 24 * time.Hour)
	res := f.generate(t, false)

	assert.Equal(t, []string{"SKU-BUY"}, itemIDs(res.Written))
	assert.Empty(t, res.Inactive)

	cur := f.current(t)["SKU-BUY"]
	assert.Equal(t, domain.StockInactive, cur.StockClass)
	assert.Equal(t, domain.InsightMonitor, cur.InsightCategory)
	assert.Equal(t, domain.RiskSafe, cur.RiskState)
	assert.Equal(t, 0, cur.RecommendedOrderQty)
	assert.Empty(t, replenishment.NewGuard().Check(cur))

	reports := NewReportService(f.mem.Repositories(), nil, f.caches, f.opts)
	for _, kind := range []domain.ReportKind{domain.ReportBuyMore, domain.ReportBuyLess, domain.ReportDeadStock, domain.ReportBufferBreach} {
		rows, err := reports.Report(ctx, testStore, kind)
		require.NoError(t, err)
		assert.Empty(t, rows, "report %s", kind)
	}

	summary, err := reports.Summary(ctx, testStore)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.OpenRecommendation)

	cart := &mockCart{}
	fb, err := NewFeedbackService(f.mem, cart, f.caches, f.opts).RecordFeedback(ctx, domain.FeedbackInput{
		RecommendationID: cur.ID,
		Status:           domain.FeedbackAccepted,
	})
	require.NoError(t, err)
	assert.False(t, fb.CartQueued)
	cart.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)

	again := f.generate(t, false)
	assert.Empty(t, again.Written)
	assert.Equal(t, []string{"SKU-BUY"}, again.Inactive)
}

func TestGenerate_MissingSKUsAreFailures(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()

	res, err := f.recommendations(t, nil).Generate(context.Background(), domain.GenerateRequest{
		StoreID: testStore,
		ItemIDs: []string{"SKU-BUY", "SKU-NOPE"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"SKU-BUY"}, itemIDs(res.Written))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "SKU-NOPE", res.Failures[0].ItemID)
	assert.Equal(t, 2, res.Run.Requested)
}

func TestGenerate_MassFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.seedSKU("SKU-BUY", "Skincare", 1, 10, 2, 30)
	for _, id := range []string{"SKU-BAD-1", "SKU-BAD-2", "SKU-BAD-3"} {
		f.seedSKU(id, "Skincare", -1, 10, 1, 30)
	}

	res, err := f.recommendations(t, nil).Generate(context.Background(), domain.GenerateRequest{StoreID: testStore})

	require.ErrorIs(t, err, domain.ErrMassFailure)
	require.NotNil(t, res)
	assert.True(t, res.NeedsReview)
	assert.Len(t, res.Failures, 3)
	assert.Empty(t, f.mem.All())

	runs, err := f.mem.ListRuns(context.Background(), testStore, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunNeedsReview, runs[0].Status)
	assert.NotEmpty(t, runs[0].ErrorMessage)
}

func TestGenerate_InsertFailureIsPerSKU(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.mem.FailInsert = func(rec *domain.Recommendation) error {
		if rec.ItemID == "SKU-LESS" {
			return errors.New("connection reset")
		}
		return nil
	}

	res := f.generate(t, false)

	assert.ElementsMatch(t, []string{"SKU-BUY", "SKU-DEAD"}, itemIDs(res.Written))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "SKU-LESS", res.Failures[0].ItemID)
	assert.Equal(t, domain.RunCompleted, res.Run.Status)
}

func TestGenerate_RunLockConflict(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	ctx := context.Background()

	release, err := f.caches.Locker.Acquire(ctx, "generate:1")
	require.NoError(t, err)

	svc := f.recommendations(t, nil)
	_, err = svc.Generate(ctx, domain.GenerateRequest{StoreID: testStore})
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	require.NoError(t, release(ctx))
	_, err = svc.Generate(ctx, domain.GenerateRequest{StoreID: testStore})
	assert.NoError(t, err)
}

func TestGenerate_RejectsInvalidStore(t *testing.T) {
	f := newFixture(t)
	_, err := f.recommendations(t, nil).Generate(context.Background(), domain.GenerateRequest{StoreID: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerate_ReasoningFailureFallsBackToTemplate(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()

	n := &mockNarrator{}
	n.On("Narrate", mock.Anything, mock.Anything).Return("", errors.New("upstream unavailable"))

	res, err := f.recommendations(t, n).Generate(context.Background(), domain.GenerateRequest{StoreID: testStore})
	require.NoError(t, err)

	require.Len(t, res.Written, 3)
	for _, rec := range res.Written {
		assert.Equal(t, domain.RationaleTemplate, rec.RationaleSource)
		assert.NotEmpty(t, rec.Rationale)
	}
	n.AssertNumberOfCalls(t, "Narrate", 3)
}

func TestGenerate_UsesNarration(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()

	_, err := f.recommendations(t, quantityNarrator{}).Generate(context.Background(), domain.GenerateRequest{StoreID: testStore})
	require.NoError(t, err)

	buy := f.current(t)["SKU-BUY"]
	assert.Equal(t, domain.RationaleReasoning, buy.RationaleSource)
	assert.Equal(t, "Order 5 units.", buy.Rationale)
}

func TestExplain_StableAcrossLiveStockChanges(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()
	svc := f.recommendations(t, nil)

	original := f.current(t)["SKU-BUY"]
	f.mem.SetStock(testStore, "SKU-BUY", 50)

	trace, err := svc.Explain(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, trace.IntegrityOK)
	assert.Equal(t, 1.0, trace.CurrentStock)
	assert.Equal(t, 5, trace.RecommendedOrderQty)
	assert.Equal(t, 2.0, trace.WeightedADS)
	assert.Equal(t, original.Rationale, trace.Rationale)

	f.clock.Advance(time.Hour)
	f.generate(t, false)

	again, err := svc.Explain(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.CurrentStock)
	assert.Equal(t, 5, again.RecommendedOrderQty)

	latest := f.current(t)["SKU-BUY"]
	assert.NotEqual(t, original.ID, latest.ID)
	assert.Equal(t, 50.0, latest.CurrentStock)
}

func TestExplain_DetectsContradictedSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()

	corrupt := f.current(t)["SKU-BUY"]
	corrupt.ID = uuid.New()
	corrupt.RecommendedOrderQty = 99
	corrupt.Rationale = "Order 99 units."
	require.NoError(t, f.mem.Insert(ctx, &corrupt))

	trace, err := f.recommendations(t, nil).Explain(ctx, corrupt.ID)
	require.NoError(t, err)

	assert.False(t, trace.IntegrityOK)
	assert.Equal(t, 5, trace.RecommendedOrderQty)
	assert.Contains(t, trace.Rationale, "Order 5 units")
	require.NotEmpty(t, trace.Discrepancies)
	assert.Equal(t, "recommended_order_quantity", trace.Discrepancies[0].Field)
}

func TestExplain_UnknownID(t *testing.T) {
	f := newFixture(t)
	_, err := f.recommendations(t, nil).Explain(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRuns_ListsGenerateRuns(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	f.clock.Advance(time.Minute)
	f.generate(t, false)

	runs, err := f.recommendations(t, nil).Runs(context.Background(), testStore, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	for _, run := range runs {
		assert.Equal(t, domain.RunGenerate, run.Kind)
		assert.Equal(t, domain.RunCompleted, run.Status)
	}
}
