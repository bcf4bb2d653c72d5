package domain

import "strings"

// FeedbackStatus is the user-driven lifecycle state of a recommendation.
type FeedbackStatus string

const (
	FeedbackPending  FeedbackStatus = "PENDING"
	FeedbackAccepted FeedbackStatus = "ACCEPTED"
	FeedbackRejected FeedbackStatus = "REJECTED"
	FeedbackIgnored  FeedbackStatus = "IGNORED"
	FeedbackUpdated  FeedbackStatus = "UPDATED"
)

var feedbackStatusCodes = map[string]FeedbackStatus{
	"pending":  FeedbackPending,
	"accepted": FeedbackAccepted,
	"rejected": FeedbackRejected,
	"ignored":  FeedbackIgnored,
	"updated":  FeedbackUpdated,
}

// ParseFeedbackStatus returns the status for a given label (case-insensitive).
func ParseFeedbackStatus(label string) (FeedbackStatus, bool) {
	status, ok := feedbackStatusCodes[strings.ToLower(strings.TrimSpace(label))]

	return status, ok
}

// IsTerminal reports whether the status ends the feedback lifecycle.
func (s FeedbackStatus) IsTerminal() bool {
	switch s {
	case FeedbackAccepted, FeedbackRejected, FeedbackIgnored, FeedbackUpdated:
		return true
	}
	return false
}

// Committed reports whether the buyer acted on the recommendation.
func (s FeedbackStatus) Committed() bool {
	return s == FeedbackAccepted || s == FeedbackUpdated
}

// TrackableFeedback is the set of statuses the outcome verifier follows up on.
var TrackableFeedback = []FeedbackStatus{
	FeedbackAccepted,
	FeedbackUpdated,
	FeedbackRejected,
	FeedbackIgnored,
}

type InsightCategory string

const (
	InsightBuyMore InsightCategory = "BUY_MORE"
	InsightBuyLess InsightCategory = "BUY_LESS"
	InsightMonitor InsightCategory = "MONITOR"
)

type RiskState string

const (
	RiskSafe     RiskState = "SAFE"
	RiskWatch    RiskState = "WATCH"
	RiskAtRisk   RiskState = "RISK"
	RiskCritical RiskState = "CRITICAL"
)

type ConfidenceTier string

const (
	ConfidenceLow    ConfidenceTier = "LOW"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceHigh   ConfidenceTier = "HIGH"
)

// StockClass separates sellers from dead and inactive SKUs. Every report
// and classification path keys off this value.
type StockClass string

const (
	StockActive   StockClass = "ACTIVE"
	StockDead     StockClass = "DEAD_STOCK"
	StockInactive StockClass = "INACTIVE"
)

type RealizedOutcome string

const (
	OutcomeSaved      RealizedOutcome = "Opportunity Saved"
	OutcomeLost       RealizedOutcome = "Opportunity Lost"
	OutcomeUnresolved RealizedOutcome = "Unresolved"
)

type RationaleSource string

const (
	RationaleReasoning RationaleSource = "reasoning_service"
	RationaleTemplate  RationaleSource = "template"
)

// ReportKind names one of the per-store decision reports.
type ReportKind string

const (
	ReportBuyMore      ReportKind = "buy_more"
	ReportBuyLess      ReportKind = "buy_less"
	ReportDeadStock    ReportKind = "dead_stock"
	ReportBufferBreach ReportKind = "buffer_breach"
)

// ReportKinds lists every report in export order.
var ReportKinds = []ReportKind{ReportBuyMore, ReportBuyLess, ReportDeadStock, ReportBufferBreach}

// ParseReportKind returns the report kind for a given label (case-insensitive).
func ParseReportKind(label string) (ReportKind, bool) {
	normalized := ReportKind(strings.ToLower(strings.TrimSpace(label)))
	for _, kind := range ReportKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}
