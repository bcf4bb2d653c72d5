// Package repository declares the data-access capabilities passed into the
// services. Implementations live in the postgres and memory subpackages.
package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/google/uuid"
)

// RegistryReader reads the SKU registry. It never writes.
type RegistryReader interface {
	// ListSKUs returns registry rows for the store; an empty itemIDs means all SKUs.
	ListSKUs(ctx context.Context, storeID int64, itemIDs []string) ([]domain.RegistryEntry, error)
	CountSKUs(ctx context.Context, storeID int64) (int, error)
	// ProtectionWindows returns per-category overrides of the protection window.
	ProtectionWindows(ctx context.Context, storeID int64) (map[string]float64, error)
}

// LedgerReader reads the daily sales/stock ledger. It never writes.
type LedgerReader interface {
	// SalesBetween returns sales events per item id for days in [from, to].
	SalesBetween(ctx context.Context, storeID int64, itemIDs []string, from, to time.Time) (map[string][]domain.SalesEvent, error)
	// DailyLedger returns ledger rows for one SKU for days in [from, to], ordered by date.
	DailyLedger(ctx context.Context, storeID int64, itemID string, from, to time.Time) ([]domain.LedgerDay, error)
}

// RecommendationRepository owns the append-only recommendations table.
type RecommendationRepository interface {
	Insert(ctx context.Context, rec *domain.Recommendation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Recommendation, error)

	// LatestBySKU returns the current row per item id.
	LatestBySKU(ctx context.Context, storeID int64, itemIDs []string) (map[string]domain.Recommendation, error)
	// ListCurrent returns the current row for every SKU of the store.
	ListCurrent(ctx context.Context, storeID int64) ([]domain.Recommendation, error)

	// UpdateFeedback writes lifecycle columns only if the row still has the
	// expected status, and appends the audit entry in the same unit of work.
	UpdateFeedback(ctx context.Context, id uuid.UUID, expected domain.FeedbackStatus, upd domain.FeedbackUpdate, audit domain.FeedbackAuditEntry) (bool, error)
	FeedbackHistory(ctx context.Context, id uuid.UUID) ([]domain.FeedbackAuditEntry, error)

	// ListVerifiable returns BUY_MORE rows with trackable feedback, no outcome
	// and fewer than maxChecks passes.
	ListVerifiable(ctx context.Context, storeID int64, maxChecks int) ([]domain.Recommendation, error)
	// RecordOutcomeCheck writes verification columns only while the outcome is
	// still null and the pass count is unchanged.
	RecordOutcomeCheck(ctx context.Context, id uuid.UUID, priorChecks int, upd domain.OutcomeUpdate) (bool, error)

	CountActivePending(ctx context.Context, storeID int64) (int, error)
	DuplicateSnapshots(ctx context.Context, storeID int64) ([]domain.DuplicateSnapshot, error)
	ListStaleVerifications(ctx context.Context, storeID int64, maxChecks int) ([]domain.Recommendation, error)

	ListGeneratedBefore(ctx context.Context, storeID int64, before time.Time) ([]domain.Recommendation, error)
	DeleteGeneratedBefore(ctx context.Context, storeID int64, before time.Time) (int64, error)
}

// RunRepository tracks generate and verify runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.GenerationRun) error
	UpdateRun(ctx context.Context, run *domain.GenerationRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.GenerationRun, error)
	ListRuns(ctx context.Context, storeID int64, limit int) ([]domain.GenerationRun, error)
}

// Store bundles every capability a service may need for one process.
type Store struct {
	Registry        RegistryReader
	Ledger          LedgerReader
	Recommendations RecommendationRepository
	Runs            RunRepository
}
