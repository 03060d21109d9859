package domain

import (
	"fmt"
	"strings"
)

// TxType says which way money moved. Amount never carries the sign.
type TxType string

const (
	// Debit is money spent, withdrawn or paid out.
	Debit TxType = "debit"
	// Credit is money received, deposited or refunded.
	Credit TxType = "credit"
)

// Valid reports whether t is one of the two known directions.
func (t TxType) Valid() bool {
	return t == Debit || t == Credit
}

// Transaction represents one movement extracted from a statement.
// It is created by the validator and never mutated afterwards; it is not
// persisted anywhere.
type Transaction struct {
	Date        string  `json:"date"`        // as printed on the statement, display only
	Description string  `json:"description"` // merchant / payee, never empty
	Amount      float64 `json:"amount"`      // magnitude, always > 0
	Type        TxType  `json:"type"`
}

// IsDebit reports whether the transaction counts towards spend.
func (t Transaction) IsDebit() bool {
	return t.Type == Debit
}

// Debits returns the debit transactions of txs in their original order.
// The result is the list the analysis prompt enumerates from 1.
func Debits(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.IsDebit() {
			out = append(out, t)
		}
	}
	return out
}

// SourceKind identifies the uploaded statement format.
type SourceKind string

const (
	SourceCSV SourceKind = "csv"
	SourcePDF SourceKind = "pdf"
)

// ParseSourceKind accepts "csv"/"pdf" in any case, with or without a leading dot.
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "csv", "text/csv":
		return SourceCSV, nil
	case "pdf", "application/pdf":
		return SourcePDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
	}
}
