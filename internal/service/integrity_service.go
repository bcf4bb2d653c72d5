package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/cache"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/lifecycle"
	"github.com/andresuchdata/autopo-engine/internal/pipeline/replenishment"
	"github.com/andresuchdata/autopo-engine/internal/repository"
	"github.com/andresuchdata/autopo-engine/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	FindingActiveExceedsSKUs = "active_exceeds_skus"
	FindingDuplicateSnapshot = "duplicate_snapshot"
	FindingSnapshotMath      = "snapshot_math"
	FindingStaleVerification = "stale_verification"
)

type IntegrityService struct {
	store   repository.Store
	objects storage.ObjectStorage
	guard   *replenishment.Guard
	traces  cache.TraceCache
	reports cache.ReportCache
	locker  cache.RunLocker
	policy  lifecycle.OutcomePolicy
	now     func() time.Time
}

func NewIntegrityService(store repository.Store, objects storage.ObjectStorage, caches *cache.Caches, opts Options) *IntegrityService {
	if caches == nil {
		caches = cache.NewNoop()
	}
	return &IntegrityService{
		store:   store,
		objects: objects,
		guard:   replenishment.NewGuard(),
		traces:  caches.Traces,
		reports: caches.Reports,
		locker:  caches.Locker,
		policy:  opts.Outcome,
		now:     opts.clock(),
	}
}

// Audit inspects a store's recommendations. The report is always returned;
// a non-empty one comes with domain.ErrIntegrityViolation.
func (s *IntegrityService) Audit(ctx context.Context, storeID int64) (*domain.IntegrityReport, error) {
	report := &domain.IntegrityReport{
		StoreID:   storeID,
		CheckedAt: s.now().UTC(),
		Findings:  make([]domain.IntegrityFinding, 0),
	}

	registered, err := s.store.Registry.CountSKUs(ctx, storeID)
	if err != nil {
		return nil, err
	}
	active, err := s.store.Recommendations.CountActivePending(ctx, storeID)
	if err != nil {
		return nil, err
	}
	report.RegisteredSKUs = registered
	report.ActivePending = active
	if active > registered {
		report.Findings = append(report.Findings, domain.IntegrityFinding{
			Kind:   FindingActiveExceedsSKUs,
			Detail: fmt.Sprintf("%d pending recommendations for %d registered SKUs", active, registered),
		})
	}

	dups, err := s.store.Recommendations.DuplicateSnapshots(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for _, d := range dups {
		report.Findings = append(report.Findings, domain.IntegrityFinding{
			Kind:   FindingDuplicateSnapshot,
			ItemID: d.ItemID,
			Detail: fmt.Sprintf("%d identical snapshots on %s (hash %s)", d.Count, d.Day.Format(time.DateOnly), d.SnapshotHash),
		})
	}

	current, err := s.store.Recommendations.ListCurrent(ctx, storeID)
	if err != nil {
		return nil, err
	}
	verifiable, err := s.store.Recommendations.ListVerifiable(ctx, storeID, s.policy.MaxChecks)
	if err != nil {
		return nil, err
	}

	// Verification reads superseded rows too, so their math is checked as well.
	inspected := make(map[uuid.UUID]bool, len(current)+len(verifiable))
	report.CurrentInspected = len(current)
	for _, rec := range current {
		inspected[rec.ID] = true
		s.checkMath(report, rec)
	}
	for _, rec := range verifiable {
		if inspected[rec.ID] {
			continue
		}
		inspected[rec.ID] = true
		report.VerifiableInspected++
		s.checkMath(report, rec)
	}

	stale, err := s.store.Recommendations.ListStaleVerifications(ctx, storeID, s.policy.MaxChecks)
	if err != nil {
		return nil, err
	}
	for _, rec := range stale {
		id := rec.ID
		report.Findings = append(report.Findings, domain.IntegrityFinding{
			Kind:             FindingStaleVerification,
			ItemID:           rec.ItemID,
			RecommendationID: &id,
			Detail:           fmt.Sprintf("%d verification passes without an outcome", rec.OutcomeCheckCount),
		})
	}

	if !report.OK() {
		log.Warn().Int64("store_id", storeID).Int("findings", len(report.Findings)).Msg("integrity: audit found problems")
		return report, fmt.Errorf("store %d: %w (%d findings)", storeID, domain.ErrIntegrityViolation, len(report.Findings))
	}
	return report, nil
}

func (s *IntegrityService) checkMath(report *domain.IntegrityReport, rec domain.Recommendation) {
	discrepancies := s.guard.Check(rec)
	if len(discrepancies) == 0 {
		return
	}
	id := rec.ID
	report.Findings = append(report.Findings, domain.IntegrityFinding{
		Kind:             FindingSnapshotMath,
		ItemID:           rec.ItemID,
		RecommendationID: &id,
		Detail:           "stored values contradict the snapshot inputs",
		Discrepancies:    discrepancies,
	})
}

// Purge archives and then deletes a store's recommendations generated before
// the cutoff, together with their feedback audit rows. Registry and ledger
// data are never touched.
func (s *IntegrityService) Purge(ctx context.Context, storeID int64, before time.Time) (*domain.PurgeResult, error) {
	now := s.now().UTC()
	if storeID <= 0 {
		return nil, fmt.Errorf("%w: store id must be positive", domain.ErrInvalidInput)
	}
	if before.IsZero() || before.After(now) {
		return nil, fmt.Errorf("%w: purge cutoff must be in the past", domain.ErrInvalidInput)
	}
	if s.objects == nil {
		return nil, errors.New("purge requires object storage for the archive")
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("generate:%d", storeID))
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, fmt.Errorf("store %d: %w", storeID, domain.ErrRunInProgress)
		}
		return nil, err
	}
	defer func() { _ = release(context.Background()) }()

	result := &domain.PurgeResult{StoreID: storeID, Before: before}

	rows, err := s.store.Recommendations.ListGeneratedBefore(ctx, storeID, before)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return result, nil
	}

	archive, err := s.buildArchive(ctx, rows)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("archives/store-%d/recommendations-before-%s-%s.csv",
		storeID, before.Format(time.DateOnly), now.Format("20060102T150405Z"))
	if err := s.objects.UploadObject(ctx, key, archive); err != nil {
		return nil, fmt.Errorf("failed to upload purge archive: %w", err)
	}
	result.ArchiveKey = key
	result.Archived = len(rows)

	deleted, err := s.store.Recommendations.DeleteGeneratedBefore(ctx, storeID, before)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	ids := make([]uuid.UUID, len(rows))
	for i, rec := range rows {
		ids[i] = rec.ID
	}
	if err := s.traces.Delete(ctx, ids...); err != nil {
		log.Warn().Err(err).Int64("store_id", storeID).Msg("purge: trace cache cleanup failed")
	}
	if err := s.reports.InvalidateStore(ctx, storeID); err != nil {
		log.Warn().Err(err).Int64("store_id", storeID).Msg("purge: report cache invalidation failed")
	}

	log.Info().
		Int64("store_id", storeID).
		Time("before", before).
		Int64("deleted", deleted).
		Str("archive", key).
		Msg("purge: recommendations archived and deleted")
	return result, nil
}

var archiveHeader = []string{
	"row_type", "id", "run_id", "store_item_id", "generated_at", "insight_category", "risk_state",
	"stock_class", "recommended_order_quantity", "days_of_cover", "weighted_ads", "snapshot_hash",
	"feedback_status", "realized_outcome", "financial_impact_cash",
	"audit_from", "audit_to", "audit_actor", "audit_at",
}

// buildArchive writes one snapshot line per row followed by its audit lines.
func (s *IntegrityService) buildArchive(ctx context.Context, rows []domain.Recommendation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(archiveHeader); err != nil {
		return nil, err
	}

	for _, rec := range rows {
		outcome := ""
		if rec.RealizedOutcome != nil {
			outcome = string(*rec.RealizedOutcome)
		}
		impact := ""
		if rec.FinancialImpactCash.Valid {
			impact = rec.FinancialImpactCash.Decimal.StringFixed(2)
		}
		line := []string{
			"recommendation", rec.ID.String(), rec.RunID.String(), rec.ItemID,
			rec.GeneratedAt.UTC().Format(time.RFC3339), string(rec.InsightCategory), string(rec.RiskState),
			string(rec.StockClass), strconv.Itoa(rec.RecommendedOrderQty),
			strconv.FormatFloat(rec.DaysOfCover, 'f', -1, 64), strconv.FormatFloat(rec.WeightedADS, 'f', -1, 64),
			rec.SnapshotHash, string(rec.FeedbackStatus), outcome, impact,
			"", "", "", "",
		}
		if err := w.Write(line); err != nil {
			return nil, err
		}

		history, err := s.store.Recommendations.FeedbackHistory(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit for %s: %w", rec.ID, err)
		}
		for _, entry := range history {
			auditLine := make([]string, len(archiveHeader))
			auditLine[0] = "feedback_audit"
			auditLine[1] = entry.ID.String()
			auditLine[3] = rec.ItemID
			auditLine[15] = string(entry.FromStatus)
			auditLine[16] = string(entry.ToStatus)
			auditLine[17] = entry.Actor
			auditLine[18] = entry.CreatedAt.UTC().Format(time.RFC3339)
			if err := w.Write(auditLine); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write purge archive: %w", err)
	}
	return buf.Bytes(), nil
}
