// Package audit turns detected subscriptions into a savings report once the
// user has decided what to cancel, keep or look into.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/just-save/internal/domain"
)

// Decision is what the user chose to do with a subscription.
type Decision string

const (
	DecisionNone        Decision = ""
	DecisionCancel      Decision = "cancel"
	DecisionInvestigate Decision = "investigate"
	DecisionKeep        Decision = "keep"
)

// ParseDecision accepts the decision names case-insensitively. An empty
// string means undecided.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionNone, DecisionCancel, DecisionInvestigate, DecisionKeep:
		return d, nil
	default:
		return DecisionNone, fmt.Errorf("ParseDecision: unknown decision %q", s)
	}
}

// Item is a subscription with the user's decision.
type Item struct {
	domain.Subscription
	Decision     Decision `json:"decision,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	YearlyAmount float64  `json:"yearlyAmount"`
}

// Report summarises an audit.
type Report struct {
	GeneratedAt        time.Time `json:"generatedAt"`
	TotalSubscriptions int       `json:"totalSubscriptions"`
	CancelledCount     int       `json:"cancelledCount"`
	InvestigateCount   int       `json:"investigateCount"`
	KeepCount          int       `json:"keepCount"`
	YearlySavings      float64   `json:"yearlySavings"`
	MonthlySavings     float64   `json:"monthlySavings"`
	Items              []Item    `json:"subscriptions"`
}

var periodsPerYear = map[domain.Frequency]int64{
	domain.FrequencyWeekly:    52,
	domain.FrequencyMonthly:   12,
	domain.FrequencyQuarterly: 4,
	domain.FrequencyAnnual:    1,
}

func yearly(amount float64, f domain.Frequency) decimal.Decimal {
	n, ok := periodsPerYear[f]
	if !ok {
		// Unknown cadence is treated as monthly.
		n = 12
	}
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(n))
}

// YearlyAmount annualises amount charged at frequency f.
func YearlyAmount(amount float64, f domain.Frequency) float64 {
	return yearly(amount, f).Round(2).InexactFloat64()
}

// Build computes the report. Savings count cancelled subscriptions only.
func Build(items []Item, now time.Time) Report {
	r := Report{
		GeneratedAt:        now.UTC(),
		TotalSubscriptions: len(items),
		Items:              make([]Item, 0, len(items)),
	}

	savings := decimal.Zero
	for _, it := range items {
		y := yearly(it.Amount, it.Frequency)
		it.YearlyAmount = y.Round(2).InexactFloat64()

		switch it.Decision {
		case DecisionCancel:
			r.CancelledCount++
			savings = savings.Add(y)
		case DecisionInvestigate:
			r.InvestigateCount++
		case DecisionKeep:
			r.KeepCount++
		}
		r.Items = append(r.Items, it)
	}

	r.YearlySavings = savings.Round(2).InexactFloat64()
	r.MonthlySavings = savings.Div(decimal.NewFromInt(12)).Round(2).InexactFloat64()
	return r
}

// Decide attaches decisions to subscriptions by name, case-insensitively.
// Subscriptions not named in any list are left undecided.
func Decide(subs []domain.Subscription, cancel, investigate, keep []string) []Item {
	decisions := make(map[string]Decision)
	add := func(names []string, d Decision) {
		for _, n := range names {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				decisions[n] = d
			}
		}
	}
	add(keep, DecisionKeep)
	add(investigate, DecisionInvestigate)
	add(cancel, DecisionCancel)

	items := make([]Item, 0, len(subs))
	for _, s := range subs {
		items = append(items, Item{
			Subscription: s,
			Decision:     decisions[strings.ToLower(s.Name)],
		})
	}
	return items
}
