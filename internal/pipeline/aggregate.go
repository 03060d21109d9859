package pipeline

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/just-save/internal/domain"
)

// TotalSpent sums the amounts of the debit transactions. Credits never count.
func TotalSpent(txs []domain.Transaction) float64 {
	sum := decimal.Zero
	for _, t := range txs {
		if t.IsDebit() {
			sum = sum.Add(decimal.NewFromFloat(t.Amount))
		}
	}
	return sum.InexactFloat64()
}

// ResolveIndex maps a 1-based transaction number, as printed in the analysis
// prompt, to list[i-1].
func ResolveIndex(list []domain.Transaction, i int) (domain.Transaction, bool) {
	if i < 1 || i > len(list) {
		return domain.Transaction{}, false
	}
	return list[i-1], true
}

// Categorize builds the per-category rollup of debits, the same numbered list
// the analysis prompt enumerated.
//
// Each debit lands in exactly one category: the first assignment that names it
// wins, later ones are ignored, and debits no assignment names go to Other.
// Labels outside the taxonomy are treated as Other. The result is sorted by
// total descending (ties in taxonomy order) and categories totalling zero are
// left out.
func Categorize(debits []domain.Transaction, assignments []CategoryAssignment, totalSpent float64) []domain.CategorySpending {
	owner := make([]string, len(debits))

	for _, a := range assignments {
		label, ok := domain.CanonicalCategory(a.Category)
		if !ok {
			label = domain.CategoryOther
		}
		for _, idx := range a.Indices {
			if _, ok := ResolveIndex(debits, idx); !ok {
				continue
			}
			if owner[idx-1] == "" {
				owner[idx-1] = label
			}
		}
	}

	type bucket struct {
		total decimal.Decimal
		txs   []domain.Transaction
	}
	buckets := make(map[string]*bucket)

	for i, t := range debits {
		label := owner[i]
		if label == "" {
			label = domain.CategoryOther
		}
		b, ok := buckets[label]
		if !ok {
			b = &bucket{total: decimal.Zero}
			buckets[label] = b
		}
		b.total = b.total.Add(decimal.NewFromFloat(t.Amount))
		b.txs = append(b.txs, t)
	}

	spent := decimal.NewFromFloat(totalSpent)
	hundred := decimal.NewFromInt(100)

	result := make([]domain.CategorySpending, 0, len(buckets))
	for label, b := range buckets {
		if b.total.IsZero() {
			continue
		}
		pct := 0.0
		if spent.IsPositive() {
			pct = b.total.Div(spent).Mul(hundred).InexactFloat64()
		}
		result = append(result, domain.CategorySpending{
			Category:     label,
			Total:        b.total.InexactFloat64(),
			Percentage:   pct,
			Count:        len(b.txs),
			Transactions: b.txs,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Total != result[j].Total {
			return result[i].Total > result[j].Total
		}
		return domain.CategoryRank(result[i].Category) < domain.CategoryRank(result[j].Category)
	})

	return result
}

// ResolveSubscriptions turns model candidates into subscriptions over debits.
//
// Unresolvable and repeated numbers are dropped; a candidate left with no
// transactions is dropped entirely. Missing or non-positive amounts fall back
// to the mean of the resolved amounts. Frequency defaults to unknown and
// confidence to medium.
func ResolveSubscriptions(candidates []SubscriptionCandidate, debits []domain.Transaction) []domain.Subscription {
	result := make([]domain.Subscription, 0, len(candidates))

	for _, c := range candidates {
		seen := make(map[int]bool, len(c.Indices))
		var txs []domain.Transaction
		sum := decimal.Zero

		for _, idx := range c.Indices {
			if seen[idx] {
				continue
			}
			t, ok := ResolveIndex(debits, idx)
			if !ok {
				continue
			}
			seen[idx] = true
			txs = append(txs, t)
			sum = sum.Add(decimal.NewFromFloat(t.Amount))
		}

		if len(txs) == 0 {
			continue
		}

		amount := sum.Div(decimal.NewFromInt(int64(len(txs)))).Round(2).InexactFloat64()
		if c.Amount != nil && *c.Amount > 0 && !math.IsInf(*c.Amount, 0) && !math.IsNaN(*c.Amount) {
			amount = *c.Amount
		}

		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = txs[0].Description
		}

		result = append(result, domain.Subscription{
			Name:         name,
			Amount:       amount,
			Frequency:    domain.ParseFrequency(c.Frequency),
			Confidence:   domain.ParseConfidence(c.Confidence),
			Transactions: txs,
		})
	}

	return result
}
