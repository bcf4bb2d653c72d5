// internal/domain/models.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store represents a store location
type Store struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RegistryEntry is one row of the SKU registry for a store.
type RegistryEntry struct {
	StoreID        int64           `json:"store_id" db:"store_id"`
	ItemID         string          `json:"store_item_id" db:"store_item_id"`
	ProductName    string          `json:"normalized_product_name" db:"normalized_product_name"`
	Category       string          `json:"master_category_name" db:"master_category_name"`
	OnHand         float64         `json:"on_hand" db:"on_hand"`
	CostPrice      decimal.Decimal `json:"cost_price" db:"cost_price"`
	SellPrice      decimal.Decimal `json:"sell_price" db:"sell_price"`
	PendingQty     float64         `json:"pending_quantity" db:"pending_quantity"`
	CaseSize       int             `json:"case_size" db:"case_size"`
	MinOrderQty    int             `json:"min_order_qty" db:"min_order_qty"`
	FirstSeenAt    *time.Time      `json:"first_seen_at,omitempty" db:"first_seen_at"`
	WindowOverride *float64        `json:"protection_window_days,omitempty" db:"protection_window_days"`
}

// SalesEvent is the quantity sold for one SKU on one day.
type SalesEvent struct {
	Date     time.Time `json:"date" db:"ledger_date"`
	Quantity float64   `json:"quantity" db:"units_sold"`
}

// LedgerDay is one daily ledger row used for outcome verification.
type LedgerDay struct {
	Date         time.Time `json:"date" db:"ledger_date"`
	UnitsSold    float64   `json:"units_sold" db:"units_sold"`
	ClosingStock float64   `json:"closing_stock" db:"closing_stock"`
}

// SKUState is the in-memory view of one SKU assembled for a single run.
// It is never persisted.
type SKUState struct {
	StoreID     int64
	ItemID      string
	ProductName string
	Category    string
	OnHand      float64
	CostPrice   decimal.Decimal
	SellPrice   decimal.Decimal
	PendingQty  float64
	CaseSize    int
	MinOrderQty int

	// ProtectionWindowDays is the resolved window for this SKU; zero means the engine default.
	ProtectionWindowDays float64

	HistoryStart *time.Time
	AsOf         time.Time
	Sales        []SalesEvent
}

// Metrics is the deterministic output of the calculator for one SKU.
type Metrics struct {
	ADS7                 float64         `json:"ads_7"`
	ADS14                float64         `json:"ads_14"`
	ADS30                float64         `json:"ads_30"`
	WeightedADS          float64         `json:"weighted_ads"`
	DemandStdDev         float64         `json:"demand_std_dev"`
	ProtectionWindowDays float64         `json:"protection_window_days"`
	ServiceLevelZ        float64         `json:"service_level_z"`
	GuardrailSafetyStock float64         `json:"guardrail_safety_stock"`
	SafetyStock          float64         `json:"safety_stock"`
	ReorderPoint         float64         `json:"reorder_point"`
	TargetStock          float64         `json:"target_stock"`
	DaysOfCover          float64         `json:"days_of_cover"`
	RecommendedOrderQty  int             `json:"recommended_order_quantity"`
	HistoryDays          int             `json:"history_days"`
	Confidence           ConfidenceTier  `json:"confidence"`
	StockClass           StockClass      `json:"stock_class"`
	ValueAtRisk          decimal.Decimal `json:"value_at_risk"`
}

// Classification is the classifier verdict for one SKU.
type Classification struct {
	Category       InsightCategory `json:"insight_category"`
	Risk           RiskState       `json:"risk_state"`
	BlockedCapital decimal.Decimal `json:"blocked_capital"`
	Caveat         string          `json:"caveat,omitempty"`
}

// Recommendation is one append-only generation event for a SKU. The snapshot
// fields are written once by the generator; feedback and verification fields
// are owned by their own state machines.
type Recommendation struct {
	ID          uuid.UUID `json:"id" db:"id"`
	RunID       uuid.UUID `json:"run_id" db:"run_id"`
	StoreID     int64     `json:"store_id" db:"store_id"`
	ItemID      string    `json:"store_item_id" db:"store_item_id"`
	ProductName string    `json:"product_name" db:"product_name"`
	Category    string    `json:"category" db:"category"`

	CurrentStock         float64         `json:"current_stock" db:"current_stock"`
	PendingQuantity      float64         `json:"pending_quantity" db:"pending_quantity"`
	CaseSize             int             `json:"case_size" db:"case_size"`
	MinOrderQty          int             `json:"min_order_qty" db:"min_order_qty"`
	CostPrice            decimal.Decimal `json:"cost_price" db:"cost_price"`
	SellPrice            decimal.Decimal `json:"sell_price" db:"sell_price"`
	ADS7                 float64         `json:"ads_7" db:"ads_7"`
	ADS14                float64         `json:"ads_14" db:"ads_14"`
	ADS30                float64         `json:"ads_30" db:"ads_30"`
	WeightedADS          float64         `json:"weighted_ads" db:"weighted_ads"`
	DemandStdDev         float64         `json:"demand_std_dev" db:"demand_std_dev"`
	ProtectionWindowDays float64         `json:"protection_window_days" db:"protection_window_days"`
	ServiceLevelZ        float64         `json:"service_level_z" db:"service_level_z"`
	GuardrailSafetyStock float64         `json:"guardrail_safety_stock" db:"guardrail_safety_stock"`
	SafetyStock          float64         `json:"safety_stock" db:"safety_stock"`
	ReorderPoint         float64         `json:"reorder_point" db:"reorder_point"`
	TargetStock          float64         `json:"target_stock" db:"target_stock"`
	DaysOfCover          float64         `json:"days_of_cover" db:"days_of_cover"`
	RecommendedOrderQty  int             `json:"recommended_order_quantity" db:"recommended_order_quantity"`
	HistoryDays          int             `json:"history_days" db:"history_days"`
	Confidence           ConfidenceTier  `json:"confidence" db:"confidence"`
	StockClass           StockClass      `json:"stock_class" db:"stock_class"`
	InsightCategory      InsightCategory `json:"insight_category" db:"insight_category"`
	RiskState            RiskState       `json:"risk_state" db:"risk_state"`
	BlockedCapital       decimal.Decimal `json:"blocked_capital" db:"blocked_capital"`
	ValueAtRisk          decimal.Decimal `json:"value_at_risk" db:"value_at_risk"`
	Caveat               string          `json:"caveat,omitempty" db:"caveat"`
	Rationale            string          `json:"rationale" db:"rationale"`
	RationaleSource      RationaleSource `json:"rationale_source" db:"rationale_source"`
	SnapshotHash         string          `json:"snapshot_hash" db:"snapshot_hash"`
	Forced               bool            `json:"forced" db:"forced"`
	GeneratedAt          time.Time       `json:"generated_at" db:"generated_at"`

	FeedbackStatus   FeedbackStatus `json:"feedback_status" db:"feedback_status"`
	FeedbackReason   *string        `json:"feedback_reason,omitempty" db:"feedback_reason"`
	FeedbackQuantity *int           `json:"feedback_quantity,omitempty" db:"feedback_quantity"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty" db:"processed_at"`
	ProcessedBy      *string        `json:"processed_by,omitempty" db:"processed_by"`

	OutcomeCheckCount   int                 `json:"outcome_check_count" db:"outcome_check_count"`
	RealizedOutcome     *RealizedOutcome    `json:"realized_outcome,omitempty" db:"realized_outcome"`
	FinancialImpactCash decimal.NullDecimal `json:"financial_impact_cash" db:"financial_impact_cash"`
	OutcomeCheckedAt    *time.Time          `json:"outcome_checked_at,omitempty" db:"outcome_checked_at"`
}

// OrderQuantity is the quantity a buyer committed to. UPDATED feedback
// replaces the engine quantity with the user's own.
func (r *Recommendation) OrderQuantity() int {
	if r.FeedbackStatus == FeedbackUpdated && r.FeedbackQuantity != nil {
		return *r.FeedbackQuantity
	}
	return r.RecommendedOrderQty
}

// FeedbackUpdate carries the lifecycle columns written by a feedback transition.
type FeedbackUpdate struct {
	Status      FeedbackStatus
	Reason      *string
	Quantity    *int
	ProcessedAt time.Time
	ProcessedBy string
}

// FeedbackAuditEntry is one row of the feedback audit trail.
type FeedbackAuditEntry struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	RecommendationID uuid.UUID      `json:"recommendation_id" db:"recommendation_id"`
	FromStatus       FeedbackStatus `json:"from_status" db:"from_status"`
	ToStatus         FeedbackStatus `json:"to_status" db:"to_status"`
	Reason           *string        `json:"reason,omitempty" db:"reason"`
	Quantity         *int           `json:"quantity,omitempty" db:"quantity"`
	Actor            string         `json:"actor" db:"actor"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// OutcomeUpdate carries the verification columns written by one check pass.
type OutcomeUpdate struct {
	CheckCount      int
	Outcome         *RealizedOutcome
	FinancialImpact decimal.NullDecimal
	CheckedAt       time.Time
}
