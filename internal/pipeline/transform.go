package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/just-save/internal/domain"
)

// ParseTransactions decodes a sanitized payload and returns the records that
// pass ValidateTransactions. The payload is either a JSON array of records or
// an object wrapping them under "transactions".
func ParseTransactions(payload string) ([]domain.Transaction, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("ParseTransactions: unmarshal JSON: %v: %w", err, domain.ErrNoJSONFound)
	}

	var items []interface{}
	switch v := parsed.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		txAny, ok := v["transactions"]
		if !ok {
			return nil, fmt.Errorf("ParseTransactions: missing 'transactions' key in model output: %w", domain.ErrNoTransactionsFound)
		}
		if items, ok = txAny.([]interface{}); !ok {
			return nil, fmt.Errorf("ParseTransactions: 'transactions' is %T, want array: %w", txAny, domain.ErrNoTransactionsFound)
		}
	default:
		return nil, fmt.Errorf("ParseTransactions: payload is %T, want array or object: %w", parsed, domain.ErrNoTransactionsFound)
	}

	txs := ValidateTransactions(items)
	if len(txs) == 0 {
		return nil, fmt.Errorf("ParseTransactions: 0 of %d records valid: %w", len(items), domain.ErrNoTransactionsFound)
	}
	return txs, nil
}

// ValidateTransactions keeps the items that are well-formed transactions and
// silently drops the rest. Records are never repaired or defaulted.
func ValidateTransactions(items []interface{}) []domain.Transaction {
	result := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		t, err := transactionFromObject(obj)
		if err != nil {
			continue
		}
		result = append(result, t)
	}
	return result
}

// transactionFromObject is the type guard for a single record.
func transactionFromObject(obj map[string]interface{}) (domain.Transaction, error) {
	date, err := getStringField(obj, "date", true)
	if err != nil {
		return domain.Transaction{}, err
	}
	desc, err := getStringField(obj, "description", true)
	if err != nil {
		return domain.Transaction{}, err
	}
	amount, err := getFloat64Field(obj, "amount", true)
	if err != nil {
		return domain.Transaction{}, err
	}
	typ, err := getStringField(obj, "type", true)
	if err != nil {
		return domain.Transaction{}, err
	}

	t := domain.Transaction{
		Date:        strings.TrimSpace(date),
		Description: strings.TrimSpace(desc),
		Amount:      amount,
		Type:        domain.TxType(typ),
	}
	if err := checkTransaction(t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// checkTransaction holds the rules every transaction must satisfy, however
// it was obtained.
func checkTransaction(t domain.Transaction) error {
	if t.Date == "" {
		return fmt.Errorf("required field %q is empty", "date")
	}
	if t.Description == "" {
		return fmt.Errorf("required field %q is empty", "description")
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) || t.Amount <= 0 {
		return fmt.Errorf("field %q must be a finite positive number, got %v", "amount", t.Amount)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("field %q must be debit or credit, got %q", "type", t.Type)
	}
	return nil
}

// ValidTransactions applies the record rules to already-typed transactions,
// such as a list posted back by a client. Fields are trimmed; records that
// break a rule are dropped, never repaired.
func ValidTransactions(txs []domain.Transaction) []domain.Transaction {
	result := make([]domain.Transaction, 0, len(txs))
	for _, t := range txs {
		t.Date = strings.TrimSpace(t.Date)
		t.Description = strings.TrimSpace(t.Description)
		if checkTransaction(t) != nil {
			continue
		}
		result = append(result, t)
	}
	return result
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getFloat64Field(m map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int: // unlikely from encoding/json, but harmless to support
		return float64(val), nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

func getOptionalFloat64Field(m map[string]interface{}, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		f := val
		return &f, nil
	case int:
		f := float64(val)
		return &f, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}
