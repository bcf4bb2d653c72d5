package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/cache"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/lifecycle"
	"github.com/andresuchdata/autopo-engine/internal/pipeline"
	"github.com/andresuchdata/autopo-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type OutcomeService struct {
	recs   repository.RecommendationRepository
	ledger repository.LedgerReader
	runs   repository.RunRepository
	locker cache.RunLocker
	policy lifecycle.OutcomePolicy
	opts   Options
	now    func() time.Time
}

type checkResult struct {
	outcome *domain.RealizedOutcome
	written bool
}

func NewOutcomeService(store repository.Store, caches *cache.Caches, opts Options) *OutcomeService {
	if caches == nil {
		caches = cache.NewNoop()
	}
	return &OutcomeService{
		recs:   store.Recommendations,
		ledger: store.Ledger,
		runs:   store.Runs,
		locker: caches.Locker,
		policy: opts.Outcome,
		opts:   opts,
		now:    opts.clock(),
	}
}

// VerifyOutcomes runs one verification pass over every open recommendation
// of a store. Rows that already carry an outcome are never touched again.
func (s *OutcomeService) VerifyOutcomes(ctx context.Context, storeID int64, asOf time.Time) (*domain.VerifyResult, error) {
	if storeID <= 0 {
		return nil, fmt.Errorf("%w: store id must be positive", domain.ErrInvalidInput)
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("verify:%d", storeID))
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, fmt.Errorf("store %d: %w", storeID, domain.ErrRunInProgress)
		}
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn().Err(err).Int64("store_id", storeID).Msg("verify: lock release failed")
		}
	}()

	now := s.now().UTC()
	if asOf.IsZero() {
		asOf = now
	}

	run := &domain.GenerationRun{
		ID:        uuid.New(),
		StoreID:   storeID,
		Kind:      domain.RunVerify,
		Status:    domain.RunProcessing,
		StartedAt: now,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create verify run: %w", err)
	}

	result, err := s.verify(ctx, run, asOf, now)

	completed := s.now().UTC()
	run.CompletedAt = &completed
	run.Status = domain.RunCompleted
	if err != nil {
		run.Status = domain.RunFailed
		run.ErrorMessage = err.Error()
	}
	if uerr := s.runs.UpdateRun(ctx, run); uerr != nil {
		log.Warn().Err(uerr).Str("run_id", run.ID.String()).Msg("verify: failed to update run")
	}

	if err != nil {
		return nil, err
	}
	result.Run = *run
	return result, nil
}

func (s *OutcomeService) verify(ctx context.Context, run *domain.GenerationRun, asOf, now time.Time) (*domain.VerifyResult, error) {
	rows, err := s.recs.ListVerifiable(ctx, run.StoreID, s.policy.MaxChecks)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifiable recommendations: %w", err)
	}
	run.Requested = len(rows)

	cfg := pipeline.DefaultPoolConfig("verify")
	cfg.RetryAttempts = 2
	if s.opts.WorkerCount > 0 {
		cfg.WorkerCount = s.opts.WorkerCount
	}

	worker := pipeline.NewWorker(
		cfg,
		func(rec domain.Recommendation) string { return rec.ID.String() },
		func(ctx context.Context, rec domain.Recommendation) (checkResult, error) {
			return s.checkOne(ctx, rec, asOf, now)
		},
	)
	results, _ := worker.Process(ctx, rows)

	out := &domain.VerifyResult{}
	for i, res := range results {
		if res.Err != nil {
			out.Failures = append(out.Failures, domain.SKUFailure{ItemID: rows[i].ItemID, Error: res.Err.Error()})
			continue
		}
		if !res.Value.written {
			run.Skipped++
			continue
		}
		out.Checked++
		switch {
		case res.Value.outcome == nil:
			out.Open++
		case *res.Value.outcome == domain.OutcomeSaved:
			out.Saved++
		case *res.Value.outcome == domain.OutcomeLost:
			out.Lost++
		default:
			out.Unresolved++
		}
	}
	run.Written = out.Checked
	run.Failed = len(out.Failures)

	log.Info().
		Int64("store_id", run.StoreID).
		Str("run_id", run.ID.String()).
		Int("checked", out.Checked).
		Int("saved", out.Saved).
		Int("lost", out.Lost).
		Int("unresolved", out.Unresolved).
		Int("failed", run.Failed).
		Msg("verify: pass finished")

	return out, nil
}

// checkOne observes the window ledger and writes one pass. The write is
// conditional, so a row finalized concurrently is left as it is. A row already
// checked on the current UTC day is skipped.
func (s *OutcomeService) checkOne(ctx context.Context, rec domain.Recommendation, asOf, now time.Time) (checkResult, error) {
	if !s.policy.Eligible(rec) {
		return checkResult{}, nil
	}
	if !s.policy.Due(rec, now) {
		log.Debug().Str("recommendation_id", rec.ID.String()).Msg("verify: already checked today, skipped")
		return checkResult{}, nil
	}

	start, end := s.policy.WindowFor(rec)
	observedEnd := end
	if asOf.Before(observedEnd) {
		observedEnd = asOf
	}

	var obs lifecycle.Observation
	if !observedEnd.Before(start) {
		days, err := s.ledger.DailyLedger(ctx, rec.StoreID, rec.ItemID, start, observedEnd)
		if err != nil {
			return checkResult{}, fmt.Errorf("failed to read ledger for %s: %w", rec.ItemID, err)
		}
		obs = lifecycle.Observe(days, start, observedEnd)
	}

	upd := s.policy.EvaluateOutcome(rec, obs, now)
	ok, err := s.recs.RecordOutcomeCheck(ctx, rec.ID, rec.OutcomeCheckCount, upd)
	if err != nil {
		return checkResult{}, err
	}
	if !ok {
		log.Debug().Str("recommendation_id", rec.ID.String()).Msg("verify: row changed concurrently, skipped")
		return checkResult{}, nil
	}

	if upd.Outcome != nil {
		log.Info().
			Str("recommendation_id", rec.ID.String()).
			Str("item_id", rec.ItemID).
			Str("outcome", string(*upd.Outcome)).
			Str("impact", upd.FinancialImpact.Decimal.StringFixed(2)).
			Msg("verify: outcome recorded")
	}
	return checkResult{outcome: upd.Outcome, written: true}, nil
}
