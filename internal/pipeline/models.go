package pipeline

import "github.com/dvloznov/just-save/internal/domain"

// SubscriptionCandidate is a subscription as proposed by the model, before its
// transaction numbers are resolved against the debit list.
type SubscriptionCandidate struct {
	Name       string
	Amount     *float64 // nil when the model omitted it
	Frequency  string
	Confidence string
	Indices    []int // 1-based
}

// CategoryAssignment is one "categories" entry of the analysis response.
type CategoryAssignment struct {
	Category string
	Indices  []int // 1-based
}

// analysisResponse is the decoded analysis object.
type analysisResponse struct {
	Subscriptions []SubscriptionCandidate
	Categories    []CategoryAssignment
	Insights      domain.Insights
	// InsightsErr is set when the insights block was missing or malformed and
	// Insights holds the defaults.
	InsightsErr error
}
