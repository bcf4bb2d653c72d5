package replenishment

import (
	"fmt"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Classifier turns metrics into an insight category and risk state.
type Classifier struct {
	cfg Config
}

func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the verdict for a SKU. Inactive SKUs are MONITOR/SAFE and
// belong to no report.
func (c *Classifier) Classify(state domain.SKUState, m domain.Metrics) domain.Classification {
	out := domain.Classification{
		Category:       domain.InsightMonitor,
		Risk:           domain.RiskSafe,
		BlockedCapital: decimal.Zero,
	}

	switch m.StockClass {
	case domain.StockInactive:
		return out
	case domain.StockDead:
		out.Risk = domain.RiskWatch
		out.BlockedCapital = m.ValueAtRisk
	default:
		window := m.ProtectionWindowDays
		switch {
		case m.DaysOfCover < window:
			out.Category = domain.InsightBuyMore
			out.Risk = c.coverRisk(m.DaysOfCover)
		case m.DaysOfCover > c.cfg.OverstockMultiple*window && m.WeightedADS > 0:
			out.Category = domain.InsightBuyLess
			out.Risk = domain.RiskWatch
			out.BlockedCapital = decimal.NewFromFloat(state.OnHand).Mul(state.CostPrice)
		}
	}

	if m.Confidence == domain.ConfidenceLow {
		if out.Category != domain.InsightMonitor {
			out.Caveat = fmt.Sprintf("Only %d days of sales history; %s downgraded to MONITOR until more data is available.", m.HistoryDays, out.Category)
			out.Category = domain.InsightMonitor
		} else {
			out.Caveat = fmt.Sprintf("Only %d days of sales history; treat these figures as provisional.", m.HistoryDays)
		}
	}

	return out
}

func (c *Classifier) coverRisk(cover float64) domain.RiskState {
	switch {
	case cover < c.cfg.CriticalCoverDays:
		return domain.RiskCritical
	case cover < c.cfg.RiskCoverDays:
		return domain.RiskAtRisk
	default:
		return domain.RiskWatch
	}
}
