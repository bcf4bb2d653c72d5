package service

import (
	"context"
	"errors"
	"testing"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestRecordFeedback_AcceptQueuesCartAndAudits(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()
	buy := f.current(t)["SKU-BUY"]

	cart := &mockCart{}
	cart.On("Enqueue", mock.Anything, mock.MatchedBy(func(item events.CartItem) bool {
		return item.RecommendationID == buy.ID && item.Quantity == 5 && item.Actor == "buyer@store"
	})).Return(nil).Once()

	svc := NewFeedbackService(f.mem, cart, f.caches, f.opts)
	res, err := svc.RecordFeedback(ctx, domain.FeedbackInput{
		RecommendationID: buy.ID,
		Status:           domain.FeedbackAccepted,
		Reason:           "  weekend promo ",
		Actor:            "buyer@store",
	})
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.True(t, res.CartQueued)
	assert.Equal(t, domain.FeedbackAccepted, res.Recommendation.FeedbackStatus)
	require.NotNil(t, res.Recommendation.FeedbackReason)
	assert.Equal(t, "weekend promo", *res.Recommendation.FeedbackReason)
	cart.AssertExpectations(t)

	stored, err := f.mem.GetByID(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackAccepted, stored.FeedbackStatus)
	require.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, testNow, *stored.ProcessedAt)

	history, err := svc.History(ctx, buy.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.FeedbackPending, history[0].FromStatus)
	assert.Equal(t, domain.FeedbackAccepted, history[0].ToStatus)
	assert.Equal(t, "buyer@store", history[0].Actor)
}

func TestRecordFeedback_RepeatIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()
	buy := f.current(t)["SKU-BUY"]

	cart := &mockCart{}
	cart.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()
	svc := NewFeedbackService(f.mem, cart, f.caches, f.opts)

	in := domain.FeedbackInput{RecommendationID: buy.ID, Status: domain.FeedbackAccepted, Actor: "buyer"}
	_, err := svc.RecordFeedback(ctx, in)
	require.NoError(t, err)

	res, err := svc.RecordFeedback(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.False(t, res.CartQueued)
	assert.Len(t, f.mem.AuditEntries(), 1)
	cart.AssertNumberOfCalls(t, "Enqueue", 1)
}

func TestRecordFeedback_TerminalStatusCannotFlip(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()
	buy := f.current(t)["SKU-BUY"]

	svc := NewFeedbackService(f.mem, nil, f.caches, f.opts)
	_, err := svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: buy.ID, Status: domain.FeedbackRejected})
	require.NoError(t, err)

	_, err = svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: buy.ID, Status: domain.FeedbackAccepted})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: buy.ID, Status: domain.FeedbackPending})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	stored, err := f.mem.GetByID(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackRejected, stored.FeedbackStatus)
	require.NotNil(t, stored.ProcessedBy)
	assert.Equal(t, "unknown", *stored.ProcessedBy)
}

func TestRecordFeedback_UpdatedCarriesUserQuantity(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()
	buy := f.current(t)["SKU-BUY"]

	cart := &mockCart{}
	cart.On("Enqueue", mock.Anything, mock.MatchedBy(func(item events.CartItem) bool {
		return item.Quantity == 8 && item.FeedbackStatus == string(domain.FeedbackUpdated)
	})).Return(nil).Once()
	svc := NewFeedbackService(f.mem, cart, f.caches, f.opts)

	_, err := svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: buy.ID, Status: domain.FeedbackUpdated})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	res, err := svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: buy.ID, Status: domain.FeedbackUpdated, Quantity: intPtr(8)})
	require.NoError(t, err)
	assert.True(t, res.CartQueued)
	assert.Equal(t, 8, res.Recommendation.OrderQuantity())
	cart.AssertExpectations(t)
}

func TestRecordFeedback_OnlyCommittedBuyMoreQueuesCart(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()
	cur := f.current(t)

	cart := &mockCart{}
	svc := NewFeedbackService(f.mem, cart, f.caches, f.opts)

	res, err := svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: cur["SKU-LESS"].ID, Status: domain.FeedbackAccepted})
	require.NoError(t, err)
	assert.False(t, res.CartQueued)

	res, err = svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: cur["SKU-BUY"].ID, Status: domain.FeedbackIgnored})
	require.NoError(t, err)
	assert.False(t, res.CartQueued)

	cart.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRecordFeedback_PendingCoveringGapQueuesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedSKU("SKU-BUY", "Skincare", 1, 10, 2, 30)
	firstSeen := testNow.AddDate(0, 0, -90)
	f.mem.PutSKU(domain.RegistryEntry{
		StoreID:     testStore,
		ItemID:      "SKU-BUY",
		ProductName: "Product SKU-BUY",
		Category:    "Skincare",
		OnHand:      1,
		PendingQty:  10,
		CostPrice:   decimal.NewFromInt(10),
		SellPrice:   decimal.NewFromInt(20),
		FirstSeenAt: &firstSeen,
	})
	f.generate(t, false)
	ctx := context.Background()

	buy := f.current(t)["SKU-BUY"]
	require.Equal(t, domain.InsightBuyMore, buy.InsightCategory)
	assert.Equal(t, 0, buy.RecommendedOrderQty)
	assert.NotContains(t, buy.Rationale, "Order 0 units")

	cart := &mockCart{}
	res, err := NewFeedbackService(f.mem, cart, f.caches, f.opts).RecordFeedback(ctx, domain.FeedbackInput{
		RecommendationID: buy.ID,
		Status:           domain.FeedbackAccepted,
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.CartQueued)
	cart.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRecordFeedback_CartFailureKeepsFeedback(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	ctx := context.Background()
	buy := f.current(t)["SKU-BUY"]

	cart := &mockCart{}
	cart.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("nats: no servers available"))
	svc := NewFeedbackService(f.mem, cart, f.caches, f.opts)

	res, err := svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: buy.ID, Status: domain.FeedbackAccepted})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.CartQueued)

	stored, err := f.mem.GetByID(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackAccepted, stored.FeedbackStatus)
}

func TestRecordFeedback_UnknownRecommendation(t *testing.T) {
	f := newFixture(t)
	svc := NewFeedbackService(f.mem, nil, f.caches, f.opts)
	ctx := context.Background()

	_, err := svc.RecordFeedback(ctx, domain.FeedbackInput{RecommendationID: uuid.New(), Status: domain.FeedbackAccepted})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.RecordFeedback(ctx, domain.FeedbackInput{Status: domain.FeedbackAccepted})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.History(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
