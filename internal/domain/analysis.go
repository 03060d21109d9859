package domain

import "strings"

// Frequency is how often a subscription charges.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
	FrequencyUnknown   Frequency = "unknown"
)

// ParseFrequency maps a model-supplied label onto a Frequency.
// A missing label means monthly, the usual billing period; anything
// unrecognised becomes FrequencyUnknown.
func ParseFrequency(s string) Frequency {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FrequencyMonthly
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual:
		return f
	default:
		return FrequencyUnknown
	}
}

// Confidence is the model's certainty that a charge is recurring.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence defaults to medium when the label is absent or unknown.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceLow:
		return Confidence(s)
	default:
		return ConfidenceMedium
	}
}

// Subscription is a detected recurring charge.
type Subscription struct {
	Name         string        `json:"name"`
	Amount       float64       `json:"amount"`
	Frequency    Frequency     `json:"frequency"`
	Confidence   Confidence    `json:"confidence"`
	Transactions []Transaction `json:"transactions"`
}

// CategorySpending aggregates the debits assigned to one category.
type CategorySpending struct {
	Category     string        `json:"category"`
	Total        float64       `json:"total"`
	Percentage   float64       `json:"percentage"`
	Count        int           `json:"count"`
	Transactions []Transaction `json:"transactions"`
}

// Insights is the short natural-language summary of an analysis.
type Insights struct {
	Overview       string `json:"overview"`
	Insight        string `json:"insight"`
	Recommendation string `json:"recommendation"`
}

// DefaultInsights is used when the model's insights block is missing or unusable.
func DefaultInsights() Insights {
	return Insights{Overview: "Analysis complete."}
}

// Analysis is the pipeline's output. It is assembled once per request and
// not mutated afterwards.
type Analysis struct {
	Subscriptions    []Subscription     `json:"subscriptions"`
	CategorySpending []CategorySpending `json:"categorySpending"`
	TotalSpent       float64            `json:"totalSpent"`
	Insights         Insights           `json:"insights"`
}
