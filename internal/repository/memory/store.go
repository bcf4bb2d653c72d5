// Package memory is an in-process implementation of the repository
// interfaces. It backs the service and handler tests and the engine's
// dry-run mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/repository"
	"github.com/google/uuid"
)

var (
	_ repository.RegistryReader           = (*Store)(nil)
	_ repository.LedgerReader             = (*Store)(nil)
	_ repository.RecommendationRepository = (*Store)(nil)
	_ repository.RunRepository            = (*Store)(nil)
)

type skuKey struct {
	storeID int64
	itemID  string
}

type Store struct {
	mu sync.RWMutex

	registry map[skuKey]domain.RegistryEntry
	windows  map[int64]map[string]float64
	ledger   map[skuKey]map[string]domain.LedgerDay

	recs  []domain.Recommendation
	audit []domain.FeedbackAuditEntry
	runs  map[uuid.UUID]domain.GenerationRun

	// FailInsert, when set, is consulted before every insert.
	FailInsert func(rec *domain.Recommendation) error
}

func NewStore() *Store {
	return &Store{
		registry: make(map[skuKey]domain.RegistryEntry),
		windows:  make(map[int64]map[string]float64),
		ledger:   make(map[skuKey]map[string]domain.LedgerDay),
		runs:     make(map[uuid.UUID]domain.GenerationRun),
	}
}

// Repositories exposes the store through the repository bundle.
func (s *Store) Repositories() repository.Store {
	return repository.Store{Registry: s, Ledger: s, Recommendations: s, Runs: s}
}

// PutSKU inserts or replaces a registry row.
func (s *Store) PutSKU(entry domain.RegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[skuKey{entry.StoreID, entry.ItemID}] = entry
}

// RemoveSKU drops a registry row; ledger and recommendations stay.
func (s *Store) RemoveSKU(storeID int64, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registry, skuKey{storeID, itemID})
}

// SetStock updates the live stock of a registry row.
func (s *Store) SetStock(storeID int64, itemID string, onHand float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := skuKey{storeID, itemID}
	if entry, ok := s.registry[key]; ok {
		entry.OnHand = onHand
		s.registry[key] = entry
	}
}

// PutWindow sets a category protection window; store 0 is global.
func (s *Store) PutWindow(storeID int64, category string, days float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.windows[storeID] == nil {
		s.windows[storeID] = make(map[string]float64)
	}
	s.windows[storeID][strings.ToUpper(category)] = days
}

// PutLedgerDay inserts or replaces one ledger row.
func (s *Store) PutLedgerDay(storeID int64, itemID string, day domain.LedgerDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := skuKey{storeID, itemID}
	if s.ledger[key] == nil {
		s.ledger[key] = make(map[string]domain.LedgerDay)
	}
	day.Date = truncateDay(day.Date)
	s.ledger[key][day.Date.Format(time.DateOnly)] = day
}

// All returns every stored recommendation in insertion order.
func (s *Store) All() []domain.Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Recommendation, len(s.recs))
	copy(out, s.recs)
	return out
}

// AuditEntries returns every audit row.
func (s *Store) AuditEntries() []domain.FeedbackAuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FeedbackAuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *Store) ListSKUs(_ context.Context, storeID int64, itemIDs []string) ([]domain.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := toSet(itemIDs)
	var out []domain.RegistryEntry
	for key, entry := range s.registry {
		if key.storeID != storeID {
			continue
		}
		if len(wanted) > 0 && !wanted[key.itemID] {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *Store) CountSKUs(_ context.Context, storeID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key := range s.registry {
		if key.storeID == storeID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ProtectionWindows(_ context.Context, storeID int64) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64)
	for category, days := range s.windows[0] {
		out[category] = days
	}
	if storeID != 0 {
		for category, days := range s.windows[storeID] {
			out[category] = days
		}
	}
	return out, nil
}

func (s *Store) SalesBetween(_ context.Context, storeID int64, itemIDs []string, from, to time.Time) (map[string][]domain.SalesEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = truncateDay(from), truncateDay(to)
	out := make(map[string][]domain.SalesEvent)
	for _, itemID := range itemIDs {
		for _, day := range s.ledgerRange(storeID, itemID, from, to) {
			if day.UnitsSold > 0 {
				out[itemID] = append(out[itemID], domain.SalesEvent{Date: day.Date, Quantity: day.UnitsSold})
			}
		}
	}
	return out, nil
}

func (s *Store) DailyLedger(_ context.Context, storeID int64, itemID string, from, to time.Time) ([]domain.LedgerDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerRange(storeID, itemID, truncateDay(from), truncateDay(to)), nil
}

func (s *Store) ledgerRange(storeID int64, itemID string, from, to time.Time) []domain.LedgerDay {
	var days []domain.LedgerDay
	for _, day := range s.ledger[skuKey{storeID, itemID}] {
		if day.Date.Before(from) || day.Date.After(to) {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days
}

func (s *Store) Insert(_ context.Context, rec *domain.Recommendation) error {
	if s.FailInsert != nil {
		if err := s.FailInsert(rec); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.recs {
		if existing.ID == rec.ID {
			return fmt.Errorf("recommendation %s already exists", rec.ID)
		}
	}
	s.recs = append(s.recs, *rec)
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		rec := s.recs[idx]
		return &rec, nil
	}
	return nil, fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
}

func (s *Store) LatestBySKU(_ context.Context, storeID int64, itemIDs []string) (map[string]domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := toSet(itemIDs)
	out := make(map[string]domain.Recommendation)
	for itemID, rec := range s.current(storeID) {
		if wanted[itemID] {
			out[itemID] = rec
		}
	}
	return out, nil
}

func (s *Store) ListCurrent(_ context.Context, storeID int64) ([]domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Recommendation
	for _, rec := range s.current(storeID) {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// current picks the newest row per SKU. Later inserts win ties.
func (s *Store) current(storeID int64) map[string]domain.Recommendation {
	latest := make(map[string]domain.Recommendation)
	for _, rec := range s.recs {
		if rec.StoreID != storeID {
			continue
		}
		prev, ok := latest[rec.ItemID]
		if !ok || !rec.GeneratedAt.Before(prev.GeneratedAt) {
			latest[rec.ItemID] = rec
		}
	}
	return latest
}

func (s *Store) UpdateFeedback(_ context.Context, id uuid.UUID, expected domain.FeedbackStatus, upd domain.FeedbackUpdate, audit domain.FeedbackAuditEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false, fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	rec := &s.recs[idx]
	if rec.FeedbackStatus != expected {
		return false, nil
	}

	processedAt := upd.ProcessedAt
	processedBy := upd.ProcessedBy
	rec.FeedbackStatus = upd.Status
	rec.FeedbackReason = upd.Reason
	rec.FeedbackQuantity = upd.Quantity
	rec.ProcessedAt = &processedAt
	rec.ProcessedBy = &processedBy
	s.audit = append(s.audit, audit)
	return true, nil
}

func (s *Store) FeedbackHistory(_ context.Context, id uuid.UUID) ([]domain.FeedbackAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.FeedbackAuditEntry
	for _, entry := range s.audit {
		if entry.RecommendationID == id {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) ListVerifiable(_ context.Context, storeID int64, maxChecks int) ([]domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trackable := make(map[domain.FeedbackStatus]bool, len(domain.TrackableFeedback))
	for _, status := range domain.TrackableFeedback {
		trackable[status] = true
	}

	var out []domain.Recommendation
	for _, rec := range s.recs {
		if rec.StoreID != storeID || rec.InsightCategory != domain.InsightBuyMore {
			continue
		}
		if !trackable[rec.FeedbackStatus] || rec.RealizedOutcome != nil || rec.OutcomeCheckCount >= maxChecks {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) RecordOutcomeCheck(_ context.Context, id uuid.UUID, priorChecks int, upd domain.OutcomeUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false, fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	rec := &s.recs[idx]
	if rec.RealizedOutcome != nil || rec.OutcomeCheckCount != priorChecks {
		return false, nil
	}

	checkedAt := upd.CheckedAt
	rec.OutcomeCheckCount = upd.CheckCount
	rec.RealizedOutcome = upd.Outcome
	rec.FinancialImpactCash = upd.FinancialImpact
	rec.OutcomeCheckedAt = &checkedAt
	return true, nil
}

func (s *Store) CountActivePending(_ context.Context, storeID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.current(storeID) {
		if rec.FeedbackStatus == domain.FeedbackPending {
			count++
		}
	}
	return count, nil
}

func (s *Store) DuplicateSnapshots(_ context.Context, storeID int64) ([]domain.DuplicateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type groupKey struct {
		itemID string
		day    string
		hash   string
	}
	counts := make(map[groupKey]int)
	for _, rec := range s.recs {
		if rec.StoreID != storeID || rec.Forced {
			continue
		}
		day := rec.GeneratedAt.UTC().Format(time.DateOnly)
		counts[groupKey{rec.ItemID, day, rec.SnapshotHash}]++
	}

	var out []domain.DuplicateSnapshot
	for key, count := range counts {
		if count < 2 {
			continue
		}
		day, _ := time.Parse(time.DateOnly, key.day)
		out = append(out, domain.DuplicateSnapshot{ItemID: key.itemID, Day: day, SnapshotHash: key.hash, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *Store) ListStaleVerifications(_ context.Context, storeID int64, maxChecks int) ([]domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Recommendation
	for _, rec := range s.recs {
		if rec.StoreID == storeID && rec.RealizedOutcome == nil && rec.OutcomeCheckCount >= maxChecks {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) ListGeneratedBefore(_ context.Context, storeID int64, before time.Time) ([]domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Recommendation
	for _, rec := range s.recs {
		if rec.StoreID == storeID && rec.GeneratedAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) DeleteGeneratedBefore(_ context.Context, storeID int64, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[uuid.UUID]bool)
	kept := s.recs[:0]
	for _, rec := range s.recs {
		if rec.StoreID == storeID && rec.GeneratedAt.Before(before) {
			removed[rec.ID] = true
			continue
		}
		kept = append(kept, rec)
	}
	s.recs = kept

	audit := s.audit[:0]
	for _, entry := range s.audit {
		if !removed[entry.RecommendationID] {
			audit = append(audit, entry)
		}
	}
	s.audit = audit
	return int64(len(removed)), nil
}

func (s *Store) CreateRun(_ context.Context, run *domain.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *Store) UpdateRun(_ context.Context, run *domain.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *Store) GetRun(_ context.Context, id uuid.UUID) (*domain.GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return &run, nil
}

func (s *Store) ListRuns(_ context.Context, storeID int64, limit int) ([]domain.GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.GenerationRun
	for _, run := range s.runs {
		if run.StoreID == storeID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) indexOf(id uuid.UUID) int {
	for i := range s.recs {
		if s.recs[i].ID == id {
			return i
		}
	}
	return -1
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
