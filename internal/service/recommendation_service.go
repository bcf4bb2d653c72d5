package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/cache"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/pipeline"
	"github.com/andresuchdata/autopo-engine/internal/pipeline/replenishment"
	"github.com/andresuchdata/autopo-engine/internal/reasoning"
	"github.com/andresuchdata/autopo-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// salesLookbackDays covers the longest ADS window, as-of day included.
const salesLookbackDays = 30

type RecommendationService struct {
	store      repository.Store
	calc       *replenishment.Calculator
	classifier *replenishment.Classifier
	guard      *replenishment.Guard
	narrator   reasoning.Narrator
	traces     cache.TraceCache
	reports    cache.ReportCache
	locker     cache.RunLocker
	opts       Options
	now        func() time.Time
}

type evaluation struct {
	state   domain.SKUState
	metrics domain.Metrics
	cls     domain.Classification
}

func NewRecommendationService(store repository.Store, narrator reasoning.Narrator, caches *cache.Caches, opts Options) (*RecommendationService, error) {
	if err := opts.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	if caches == nil {
		caches = cache.NewNoop()
	}
	if narrator == nil {
		narrator = reasoning.Disabled{}
	}

	return &RecommendationService{
		store:      store,
		calc:       replenishment.NewCalculator(opts.Engine),
		classifier: replenishment.NewClassifier(opts.Engine),
		guard:      replenishment.NewGuard(),
		narrator:   narrator,
		traces:     caches.Traces,
		reports:    caches.Reports,
		locker:     caches.Locker,
		opts:       opts,
		now:        opts.clock(),
	}, nil
}

// Generate evaluates the requested SKUs and appends a snapshot for every SKU
// whose decision changed (or every evaluated SKU when forced).
func (s *RecommendationService) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	if req.StoreID <= 0 {
		return nil, fmt.Errorf("%w: store id must be positive", domain.ErrInvalidInput)
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("generate:%d", req.StoreID))
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, fmt.Errorf("store %d: %w", req.StoreID, domain.ErrRunInProgress)
		}
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn().Err(err).Int64("store_id", req.StoreID).Msg("generate: lock release failed")
		}
	}()

	now := s.now().UTC()
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = now
	}

	run := &domain.GenerationRun{
		ID:        uuid.New(),
		StoreID:   req.StoreID,
		Kind:      domain.RunGenerate,
		Status:    domain.RunProcessing,
		Forced:    req.ForceUpdate,
		StartedAt: now,
	}
	if err := s.store.Runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create generation run: %w", err)
	}

	result, err := s.generate(ctx, run, req, asOf, now)
	s.finishRun(ctx, run, err)
	if result != nil {
		result.Run = *run
	}
	return result, err
}

func (s *RecommendationService) generate(ctx context.Context, run *domain.GenerationRun, req domain.GenerateRequest, asOf, now time.Time) (*domain.GenerateResult, error) {
	result := &domain.GenerateResult{
		Written:   make([]domain.Recommendation, 0),
		Unchanged: make([]string, 0),
		Inactive:  make([]string, 0),
	}

	states, missing, err := s.loadStates(ctx, req.StoreID, req.ItemIDs, asOf)
	if err != nil {
		return nil, err
	}
	run.Requested = len(states) + len(missing)
	for _, itemID := range missing {
		result.Failures = append(result.Failures, domain.SKUFailure{ItemID: itemID, Error: "not found in registry"})
	}

	worker := pipeline.NewWorker(
		s.poolConfig("evaluate"),
		func(state domain.SKUState) string { return state.ItemID },
		func(_ context.Context, state domain.SKUState) (evaluation, error) {
			m, err := s.calc.Calculate(state)
			if err != nil {
				return evaluation{}, err
			}
			return evaluation{state: state, metrics: m, cls: s.classifier.Classify(state, m)}, nil
		},
	)
	evaluated, _ := worker.Process(ctx, states)

	var candidates []evaluation
	for _, res := range evaluated {
		if res.Err != nil {
			result.Failures = append(result.Failures, domain.SKUFailure{ItemID: res.Key, Error: res.Err.Error()})
			continue
		}
		candidates = append(candidates, res.Value)
	}
	run.Failed = len(result.Failures)

	if run.Requested > 0 && float64(len(result.Failures))/float64(run.Requested) > s.opts.MassFailureRatio {
		result.NeedsReview = true
		return result, fmt.Errorf("%w: %d of %d SKUs failed", domain.ErrMassFailure, len(result.Failures), run.Requested)
	}

	toWrite, err := s.selectChanged(ctx, run, req.ForceUpdate, candidates, now, result)
	if err != nil {
		return nil, err
	}

	s.narrate(ctx, toWrite)

	for i := range toWrite {
		rec := &toWrite[i]
		if err := s.store.Recommendations.Insert(ctx, rec); err != nil {
			log.Error().Err(err).
				Int64("store_id", rec.StoreID).
				Str("item_id", rec.ItemID).
				Str("run_id", run.ID.String()).
				Msg("generate: snapshot insert failed")
			result.Failures = append(result.Failures, domain.SKUFailure{ItemID: rec.ItemID, Error: err.Error()})
			continue
		}
		result.Written = append(result.Written, *rec)
	}

	run.Written = len(result.Written)
	run.Skipped = len(result.Unchanged) + len(result.Inactive)
	run.Failed = len(result.Failures)

	if len(result.Written) > 0 {
		if err := s.reports.InvalidateStore(ctx, req.StoreID); err != nil {
			log.Warn().Err(err).Int64("store_id", req.StoreID).Msg("generate: report cache invalidation failed")
		}
	}

	log.Info().
		Int64("store_id", req.StoreID).
		Str("run_id", run.ID.String()).
		Int("requested", run.Requested).
		Int("written", run.Written).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Msg("generate: run finished")

	return result, nil
}

// selectChanged builds the new snapshots and drops the ones that match the
// SKU's latest row closely enough, unless the run is forced. An inactive SKU
// gets one INACTIVE row when it leaves the active or dead class, so a stale
// BUY_MORE snapshot never stays current.
func (s *RecommendationService) selectChanged(ctx context.Context, run *domain.GenerationRun, force bool, candidates []evaluation, now time.Time, result *domain.GenerateResult) ([]domain.Recommendation, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.state.ItemID
	}

	latest := map[string]domain.Recommendation{}
	if len(ids) > 0 {
		var err error
		latest, err = s.store.Recommendations.LatestBySKU(ctx, run.StoreID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest snapshots: %w", err)
		}
	}

	toWrite := make([]domain.Recommendation, 0, len(candidates))
	for _, c := range candidates {
		prev, hasPrev := latest[c.state.ItemID]

		if c.metrics.StockClass == domain.StockInactive {
			if !hasPrev || prev.StockClass == domain.StockInactive {
				result.Inactive = append(result.Inactive, c.state.ItemID)
				continue
			}
			rec := replenishment.NewSnapshot(c.state, c.metrics, c.cls, run.ID, now)
			rec.Forced = force
			toWrite = append(toWrite, rec)
			continue
		}

		rec := replenishment.NewSnapshot(c.state, c.metrics, c.cls, run.ID, now)
		rec.Forced = force

		if !force && hasPrev && !replenishment.MateriallyChanged(prev, rec, s.opts.Engine.MaterialChangeRatio) {
			result.Unchanged = append(result.Unchanged, rec.ItemID)
			continue
		}
		toWrite = append(toWrite, rec)
	}
	return toWrite, nil
}

// narrate fills the rationale of each snapshot. It runs before any insert so
// no unit of work is open while the reasoning service is called.
func (s *RecommendationService) narrate(ctx context.Context, recs []domain.Recommendation) {
	if len(recs) == 0 {
		return
	}

	worker := pipeline.NewWorker(
		s.poolConfig("narrate"),
		func(idx int) string { return recs[idx].ItemID },
		func(ctx context.Context, idx int) (struct{}, error) {
			trace := s.guard.Reconstruct(recs[idx])
			recs[idx].Rationale, recs[idx].RationaleSource = reasoning.Rationale(ctx, s.narrator, trace)
			return struct{}{}, nil
		},
	)

	jobs := make([]int, len(recs))
	for i := range jobs {
		jobs[i] = i
	}
	results, _ := worker.Process(ctx, jobs)

	// A cancelled context leaves some rows unnarrated.
	for i, res := range results {
		if res.Err != nil || recs[i].Rationale == "" {
			recs[i].Rationale = replenishment.TemplateRationale(s.guard.Reconstruct(recs[i]))
			recs[i].RationaleSource = domain.RationaleTemplate
		}
	}
}

// loadStates assembles the in-memory SKU view for the run. Requested ids
// missing from the registry are returned separately.
func (s *RecommendationService) loadStates(ctx context.Context, storeID int64, itemIDs []string, asOf time.Time) ([]domain.SKUState, []string, error) {
	entries, err := s.store.Registry.ListSKUs(ctx, storeID, itemIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load registry: %w", err)
	}

	var missing []string
	if len(itemIDs) > 0 {
		found := make(map[string]bool, len(entries))
		for _, e := range entries {
			found[e.ItemID] = true
		}
		seen := make(map[string]bool, len(itemIDs))
		for _, id := range itemIDs {
			if !found[id] && !seen[id] {
				missing = append(missing, id)
			}
			seen[id] = true
		}
	}
	if len(entries) == 0 {
		return nil, missing, nil
	}

	windows, err := s.store.Registry.ProtectionWindows(ctx, storeID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load protection windows: %w", err)
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ItemID
	}
	from := asOf.AddDate(0, 0, -(salesLookbackDays - 1))
	sales, err := s.store.Ledger.SalesBetween(ctx, storeID, ids, from, asOf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sales: %w", err)
	}

	states := make([]domain.SKUState, len(entries))
	for i, e := range entries {
		states[i] = domain.SKUState{
			StoreID:              e.StoreID,
			ItemID:               e.ItemID,
			ProductName:          e.ProductName,
			Category:             e.Category,
			OnHand:               e.OnHand,
			CostPrice:            e.CostPrice,
			SellPrice:            e.SellPrice,
			PendingQty:           e.PendingQty,
			CaseSize:             e.CaseSize,
			MinOrderQty:          e.MinOrderQty,
			ProtectionWindowDays: resolveWindow(e, windows),
			HistoryStart:         e.FirstSeenAt,
			AsOf:                 asOf,
			Sales:                sales[e.ItemID],
		}
	}
	return states, missing, nil
}

// resolveWindow applies the SKU override, then the category window. Zero
// leaves the engine default in place.
func resolveWindow(e domain.RegistryEntry, windows map[string]float64) float64 {
	if e.WindowOverride != nil && *e.WindowOverride > 0 {
		return *e.WindowOverride
	}
	return windows[strings.ToUpper(e.Category)]
}

func (s *RecommendationService) finishRun(ctx context.Context, run *domain.GenerationRun, runErr error) {
	completed := s.now().UTC()
	run.CompletedAt = &completed

	switch {
	case errors.Is(runErr, domain.ErrMassFailure):
		run.Status = domain.RunNeedsReview
		run.ErrorMessage = runErr.Error()
	case runErr != nil:
		run.Status = domain.RunFailed
		run.ErrorMessage = runErr.Error()
	default:
		run.Status = domain.RunCompleted
	}

	if err := s.store.Runs.UpdateRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID.String()).Msg("generate: failed to update run")
	}
}

func (s *RecommendationService) poolConfig(name string) pipeline.PoolConfig {
	cfg := pipeline.DefaultPoolConfig(name)
	if s.opts.WorkerCount > 0 {
		cfg.WorkerCount = s.opts.WorkerCount
	}
	return cfg
}

// Explain returns the numeric trace of a snapshot, rebuilt from the row
// alone. Live stock changes never alter it.
func (s *RecommendationService) Explain(ctx context.Context, id uuid.UUID) (*domain.NumericTrace, error) {
	if trace, ok, err := s.traces.Get(ctx, id); err == nil && ok {
		return trace, nil
	} else if err != nil {
		log.Warn().Err(err).Str("recommendation_id", id.String()).Msg("explain: cache get failed")
	}

	rec, err := s.store.Recommendations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	trace := s.guard.Reconstruct(*rec)
	if !trace.IntegrityOK {
		// The stored prose may quote the contradicted numbers.
		trace.Rationale = replenishment.TemplateRationale(trace)
		log.Warn().
			Str("recommendation_id", id.String()).
			Int("discrepancies", len(trace.Discrepancies)).
			Msg("explain: snapshot contradicts its own inputs")
	}

	if err := s.traces.Set(ctx, &trace); err != nil {
		log.Warn().Err(err).Str("recommendation_id", id.String()).Msg("explain: cache set failed")
	}
	return &trace, nil
}

// ListCurrent returns the current snapshot for every SKU of a store.
func (s *RecommendationService) ListCurrent(ctx context.Context, storeID int64) ([]domain.Recommendation, error) {
	recs, err := s.store.Recommendations.ListCurrent(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = make([]domain.Recommendation, 0)
	}
	return recs, nil
}

// Runs lists recent runs for a store.
func (s *RecommendationService) Runs(ctx context.Context, storeID int64, limit int) ([]domain.GenerationRun, error) {
	return s.store.Runs.ListRuns(ctx, storeID, limit)
}
