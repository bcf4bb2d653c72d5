package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunKind names what a tracked run did.
type RunKind string

const (
	RunGenerate RunKind = "generate"
	RunVerify   RunKind = "verify"
)

// RunStatus represents the current state of a tracked run
type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunProcessing  RunStatus = "processing"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunNeedsReview RunStatus = "needs_review"
)

// GenerationRun tracks a single generate or verify pass for one store
type GenerationRun struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	StoreID      int64      `json:"store_id" db:"store_id"`
	Kind         RunKind    `json:"kind" db:"kind"`
	Status       RunStatus  `json:"status" db:"status"`
	Forced       bool       `json:"forced" db:"forced"`
	Requested    int        `json:"requested" db:"requested"`
	Written      int        `json:"written" db:"written"`
	Skipped      int        `json:"skipped" db:"skipped"`
	Failed       int        `json:"failed" db:"failed"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
}

// GenerateRequest asks for new snapshots for a store.
type GenerateRequest struct {
	StoreID     int64     `json:"store_id"`
	ItemIDs     []string  `json:"sku_ids"`
	ForceUpdate bool      `json:"force_update"`
	AsOf        time.Time `json:"as_of"`
	Actor       string    `json:"actor"`
}

// SKUFailure explains why one SKU could not be classified or persisted.
type SKUFailure struct {
	ItemID string `json:"store_item_id"`
	Error  string `json:"error"`
}

// GenerateResult summarizes a generate run.
type GenerateResult struct {
	Run         GenerationRun    `json:"run"`
	Written     []Recommendation `json:"written"`
	Unchanged   []string         `json:"unchanged"`
	Inactive    []string         `json:"inactive"`
	Failures    []SKUFailure     `json:"failures,omitempty"`
	NeedsReview bool             `json:"needs_review"`
}

// VerifyResult summarizes one outcome verification pass.
type VerifyResult struct {
	Run        GenerationRun `json:"run"`
	Checked    int           `json:"checked"`
	Saved      int           `json:"saved"`
	Lost       int           `json:"lost"`
	Unresolved int           `json:"unresolved"`
	Open       int           `json:"open"`
	Failures   []SKUFailure  `json:"failures,omitempty"`
}

// FeedbackInput is one user response to a recommendation.
type FeedbackInput struct {
	RecommendationID uuid.UUID      `json:"recommendation_id"`
	Status           FeedbackStatus `json:"status"`
	Reason           string         `json:"reason"`
	Actor            string         `json:"actor"`
	Quantity         *int           `json:"quantity,omitempty"`
}

// FeedbackResult reports what a feedback call did.
type FeedbackResult struct {
	Recommendation Recommendation `json:"recommendation"`
	Applied        bool           `json:"applied"`
	CartQueued     bool           `json:"cart_queued"`
}

// DuplicateSnapshot groups identical same-day snapshots for one SKU.
type DuplicateSnapshot struct {
	ItemID       string    `json:"store_item_id" db:"store_item_id"`
	Day          time.Time `json:"day" db:"day"`
	SnapshotHash string    `json:"snapshot_hash" db:"snapshot_hash"`
	Count        int       `json:"count" db:"count"`
}

// IntegrityFinding is one audit problem.
type IntegrityFinding struct {
	Kind             string        `json:"kind"`
	ItemID           string        `json:"store_item_id,omitempty"`
	RecommendationID *uuid.UUID    `json:"recommendation_id,omitempty"`
	Detail           string        `json:"detail"`
	Discrepancies    []Discrepancy `json:"discrepancies,omitempty"`
}

// IntegrityReport is the result of an audit pass over one store.
type IntegrityReport struct {
	StoreID             int64              `json:"store_id"`
	CheckedAt           time.Time          `json:"checked_at"`
	RegisteredSKUs      int                `json:"registered_skus"`
	ActivePending       int                `json:"active_pending"`
	CurrentInspected    int                `json:"current_inspected"`
	VerifiableInspected int                `json:"verifiable_inspected"` // superseded rows still under verification
	Findings            []IntegrityFinding `json:"findings"`
}

// OK reports whether the audit found nothing.
func (r *IntegrityReport) OK() bool {
	return len(r.Findings) == 0
}

// PurgeResult reports an administrative purge.
type PurgeResult struct {
	StoreID    int64     `json:"store_id"`
	Before     time.Time `json:"before"`
	Archived   int       `json:"archived"`
	Deleted    int64     `json:"deleted"`
	ArchiveKey string    `json:"archive_key"`
}

// StockHealthBuckets counts SKUs by on-hand level.
type StockHealthBuckets struct {
	OutOfStock int `json:"out_of_stock"`
	Critical   int `json:"critical"`
	Healthy    int `json:"healthy"`
}

// CategoryValue is the inventory value carried by one category.
type CategoryValue struct {
	Category string          `json:"category"`
	SKUs     int             `json:"skus"`
	Value    decimal.Decimal `json:"value"`
}

// InventorySummary is the store-level valuation report.
type InventorySummary struct {
	StoreID            int64              `json:"store_id"`
	TotalSKUs          int                `json:"total_skus"`
	TotalUnits         float64            `json:"total_units"`
	InventoryValue     decimal.Decimal    `json:"inventory_value"`
	PotentialRevenue   decimal.Decimal    `json:"potential_revenue"`
	PotentialProfit    decimal.Decimal    `json:"potential_profit"`
	AverageMarginPct   float64            `json:"average_margin_pct"`
	StockHealth        StockHealthBuckets `json:"stock_health"`
	CriticalAlerts     []string           `json:"critical_alerts"`
	TopCategories      []CategoryValue    `json:"top_categories"`
	DeadStockValue     decimal.Decimal    `json:"dead_stock_value"`
	BlockedCapital     decimal.Decimal    `json:"blocked_capital"`
	OpenRecommendation int                `json:"open_recommendations"`
}

// ExportResult points at an uploaded report workbook.
type ExportResult struct {
	StoreID int64  `json:"store_id"`
	Key     string `json:"key"`
	Size    int64  `json:"size"`
	Rows    int    `json:"rows"`
}
