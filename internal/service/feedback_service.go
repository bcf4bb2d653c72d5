package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/cache"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/events"
	"github.com/andresuchdata/autopo-engine/internal/lifecycle"
	"github.com/andresuchdata/autopo-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// feedbackCASAttempts bounds re-reads when a concurrent caller wins the race.
const feedbackCASAttempts = 3

type FeedbackService struct {
	recs    repository.RecommendationRepository
	cart    events.CartQueue
	reports cache.ReportCache
	now     func() time.Time
}

func NewFeedbackService(recs repository.RecommendationRepository, cart events.CartQueue, caches *cache.Caches, opts Options) *FeedbackService {
	if caches == nil {
		caches = cache.NewNoop()
	}
	return &FeedbackService{recs: recs, cart: cart, reports: caches.Reports, now: opts.clock()}
}

// RecordFeedback applies a terminal status to a pending recommendation.
// Repeating the current status is a no-op; any other change of a decided row
// is rejected.
func (s *FeedbackService) RecordFeedback(ctx context.Context, in domain.FeedbackInput) (*domain.FeedbackResult, error) {
	if in.RecommendationID == uuid.Nil {
		return nil, fmt.Errorf("%w: recommendation id is required", domain.ErrInvalidInput)
	}
	if in.Status == domain.FeedbackUpdated && (in.Quantity == nil || *in.Quantity < 0) {
		return nil, fmt.Errorf("%w: UPDATED feedback needs a non-negative quantity", domain.ErrInvalidInput)
	}

	actor := strings.TrimSpace(in.Actor)
	if actor == "" {
		actor = "unknown"
	}
	var reason *string
	if r := strings.TrimSpace(in.Reason); r != "" {
		reason = &r
	}
	var quantity *int
	if in.Status == domain.FeedbackUpdated {
		q := *in.Quantity
		quantity = &q
	}

	for attempt := 1; attempt <= feedbackCASAttempts; attempt++ {
		rec, err := s.recs.GetByID(ctx, in.RecommendationID)
		if err != nil {
			return nil, err
		}

		applied, err := lifecycle.NextFeedback(rec.FeedbackStatus, in.Status)
		if err != nil {
			return nil, err
		}
		if !applied {
			return &domain.FeedbackResult{Recommendation: *rec}, nil
		}

		at := s.now().UTC()
		upd := domain.FeedbackUpdate{
			Status:      in.Status,
			Reason:      reason,
			Quantity:    quantity,
			ProcessedAt: at,
			ProcessedBy: actor,
		}
		audit := domain.FeedbackAuditEntry{
			ID:               uuid.New(),
			RecommendationID: rec.ID,
			FromStatus:       rec.FeedbackStatus,
			ToStatus:         in.Status,
			Reason:           reason,
			Quantity:         quantity,
			Actor:            actor,
			CreatedAt:        at,
		}

		ok, err := s.recs.UpdateFeedback(ctx, rec.ID, rec.FeedbackStatus, upd, audit)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Debug().Str("recommendation_id", rec.ID.String()).Int("attempt", attempt).Msg("feedback: lost status race, re-reading")
			continue
		}

		rec.FeedbackStatus = in.Status
		rec.FeedbackReason = reason
		rec.FeedbackQuantity = quantity
		rec.ProcessedAt = &at
		rec.ProcessedBy = &actor

		result := &domain.FeedbackResult{Recommendation: *rec, Applied: true}
		if lifecycle.QueuesCart(*rec, in.Status) {
			result.CartQueued = s.queueCart(ctx, *rec, actor, at)
		}

		if err := s.reports.InvalidateStore(ctx, rec.StoreID); err != nil {
			log.Warn().Err(err).Int64("store_id", rec.StoreID).Msg("feedback: report cache invalidation failed")
		}

		log.Info().
			Str("recommendation_id", rec.ID.String()).
			Str("item_id", rec.ItemID).
			Str("status", string(in.Status)).
			Str("actor", actor).
			Msg("feedback recorded")
		return result, nil
	}

	return nil, fmt.Errorf("recommendation %s: feedback changed concurrently, retry later", in.RecommendationID)
}

// queueCart is best effort; the recorded feedback stands either way.
func (s *FeedbackService) queueCart(ctx context.Context, rec domain.Recommendation, actor string, at time.Time) bool {
	if s.cart == nil {
		return false
	}
	if err := s.cart.Enqueue(ctx, events.NewCartItem(rec, actor, at)); err != nil {
		log.Warn().Err(err).
			Str("recommendation_id", rec.ID.String()).
			Str("item_id", rec.ItemID).
			Msg("feedback: cart queue failed")
		return false
	}
	return true
}

// History returns the audit trail of a recommendation, oldest first.
func (s *FeedbackService) History(ctx context.Context, id uuid.UUID) ([]domain.FeedbackAuditEntry, error) {
	if _, err := s.recs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.recs.FeedbackHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make([]domain.FeedbackAuditEntry, 0)
	}
	return entries, nil
}
