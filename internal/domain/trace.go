package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NumericTrace is every number behind a recommendation, rebuilt from the
// snapshot row. It is also the only input handed to the reasoning service.
type NumericTrace struct {
	RecommendationID uuid.UUID `json:"recommendation_id"`
	StoreID          int64     `json:"store_id"`
	ItemID           string    `json:"store_item_id"`
	ProductName      string    `json:"product_name"`
	GeneratedAt      time.Time `json:"generated_at"`

	ADS7                 float64 `json:"ads_7"`
	ADS14                float64 `json:"ads_14"`
	ADS30                float64 `json:"ads_30"`
	WeightedADS          float64 `json:"weighted_ads"`
	DemandStdDev         float64 `json:"demand_std_dev"`
	ProtectionWindowDays float64 `json:"protection_window_days"`
	ServiceLevelZ        float64 `json:"service_level_z"`
	SafetyStock          float64 `json:"safety_stock"`
	GuardrailSafetyStock float64 `json:"guardrail_safety_stock"`
	ReorderPoint         float64 `json:"reorder_point"`
	TargetStock          float64 `json:"target_stock"`
	CurrentStock         float64 `json:"current_stock"`
	PendingQuantity      float64 `json:"pending_quantity"`
	CaseSize             int     `json:"case_size"`
	MinOrderQty          int     `json:"min_order_qty"`
	DaysOfCover          float64 `json:"days_of_cover"`
	RecommendedOrderQty  int     `json:"recommended_order_quantity"`
	HistoryDays          int     `json:"history_days"`

	Confidence      ConfidenceTier  `json:"confidence"`
	StockClass      StockClass      `json:"stock_class"`
	InsightCategory InsightCategory `json:"insight_category"`
	RiskState       RiskState       `json:"risk_state"`
	BlockedCapital  decimal.Decimal `json:"blocked_capital"`
	ValueAtRisk     decimal.Decimal `json:"value_at_risk"`
	Caveat          string          `json:"caveat,omitempty"`
	Rationale       string          `json:"rationale,omitempty"`

	IntegrityOK   bool          `json:"integrity_ok"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
}

// Discrepancy records a stored snapshot value that disagrees with the value
// derived from the snapshot's own inputs.
type Discrepancy struct {
	Field   string  `json:"field"`
	Stored  float64 `json:"stored"`
	Derived float64 `json:"derived"`
}
