package lifecycle

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// OutcomePolicy bounds the verification schedule.
type OutcomePolicy struct {
	WindowDays int // Days observed after generation
	MaxChecks  int // Passes before a row is closed as Unresolved
}

func DefaultOutcomePolicy() OutcomePolicy {
	return OutcomePolicy{WindowDays: 7, MaxChecks: 7}
}

// WindowFor returns the first and last ledger day observed for a row.
func (p OutcomePolicy) WindowFor(rec domain.Recommendation) (time.Time, time.Time) {
	start := utcDay(rec.GeneratedAt)
	return start, start.AddDate(0, 0, p.WindowDays-1)
}

// Due reports whether a pass at now may count. A row is checked at most once
// per UTC calendar day, however often verification runs.
func (p OutcomePolicy) Due(rec domain.Recommendation, now time.Time) bool {
	if rec.OutcomeCheckedAt == nil {
		return true
	}
	return utcDay(now).After(utcDay(*rec.OutcomeCheckedAt))
}

// Eligible reports whether a row is still open for verification.
func (p OutcomePolicy) Eligible(rec domain.Recommendation) bool {
	if rec.InsightCategory != domain.InsightBuyMore || rec.RealizedOutcome != nil {
		return false
	}
	if rec.OutcomeCheckCount >= p.MaxChecks {
		return false
	}
	for _, s := range domain.TrackableFeedback {
		if rec.FeedbackStatus == s {
			return true
		}
	}
	return false
}

// Observation summarizes the ledger inside a verification window.
type Observation struct {
	DaysObserved int
	StockoutDays int
	UnitsSold    float64
}

// Observe folds ledger rows that fall inside [start, end].
func Observe(days []domain.LedgerDay, start, end time.Time) Observation {
	var obs Observation
	seen := make(map[time.Time]bool, len(days))
	for _, day := range days {
		key := utcDay(day.Date)
		if key.Before(start) || key.After(end) || seen[key] {
			continue
		}
		seen[key] = true
		obs.DaysObserved++
		obs.UnitsSold += day.UnitsSold
		if day.ClosingStock <= 0 {
			obs.StockoutDays++
		}
	}
	return obs
}

// EvaluateOutcome runs one verification pass for a row and returns the
// verification columns to write. A result with a nil Outcome keeps the row open.
func (p OutcomePolicy) EvaluateOutcome(rec domain.Recommendation, obs Observation, now time.Time) domain.OutcomeUpdate {
	upd := domain.OutcomeUpdate{
		CheckCount: rec.OutcomeCheckCount + 1,
		CheckedAt:  now,
	}

	complete := obs.DaysObserved >= p.WindowDays
	switch {
	case rec.FeedbackStatus.Committed() && complete && obs.StockoutDays == 0 && rec.OrderQuantity() > 0:
		protected := math.Min(float64(rec.OrderQuantity()), obs.UnitsSold)
		upd.Outcome = outcomePtr(domain.OutcomeSaved)
		upd.FinancialImpact = decimal.NewNullDecimal(decimal.NewFromFloat(protected).Mul(rec.SellPrice).Round(2))
	case !rec.FeedbackStatus.Committed() && obs.StockoutDays > 0 && obs.UnitsSold > 0:
		lost := decimal.NewFromInt(int64(obs.StockoutDays)).
			Mul(decimal.NewFromFloat(rec.WeightedADS)).
			Mul(rec.SellPrice)
		upd.Outcome = outcomePtr(domain.OutcomeLost)
		upd.FinancialImpact = decimal.NewNullDecimal(lost.Round(2))
	case upd.CheckCount >= p.MaxChecks:
		upd.Outcome = outcomePtr(domain.OutcomeUnresolved)
	}

	return upd
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func outcomePtr(o domain.RealizedOutcome) *domain.RealizedOutcome {
	return &o
}
