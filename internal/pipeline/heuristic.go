package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/just-save/internal/domain"
)

// Header names recognised by the heuristic extractor, lowercased.
var (
	dateHeaders   = []string{"date", "transaction date", "posted date", "posting date", "value date", "booking date", "completed date"}
	descHeaders   = []string{"description", "memo", "merchant", "payee", "details", "narrative", "name", "transaction description", "reference"}
	amountHeaders = []string{"amount", "transaction amount", "value", "amount (gbp)", "amount (usd)", "amount (eur)"}
	debitHeaders  = []string{"debit", "debit amount", "withdrawal", "withdrawals", "money out", "paid out", "out"}
	creditHeaders = []string{"credit", "credit amount", "deposit", "deposits", "money in", "paid in", "in"}
	typeHeaders   = []string{"type", "transaction type", "dr/cr", "debit/credit", "cr/dr"}
)

// columnMap holds the column index of each recognised field, -1 when absent.
type columnMap struct {
	date, desc, amount, debit, credit, txType int
}

func (c columnMap) usable() bool {
	return c.date >= 0 && c.desc >= 0 && (c.amount >= 0 || c.debit >= 0 || c.credit >= 0)
}

// HeuristicExtractor reads CSV statements by header name without calling the
// reasoning engine. It understands a single signed amount column as well as
// separate debit and credit columns. PDF input is not supported.
type HeuristicExtractor struct {
	limits Limits
}

// NewHeuristicExtractor creates a HeuristicExtractor.
func NewHeuristicExtractor(limits Limits) *HeuristicExtractor {
	return &HeuristicExtractor{limits: limits}
}

// Extract parses in.Content as CSV.
func (e *HeuristicExtractor) Extract(ctx context.Context, in Input, tracker *StageTracker) ([]domain.Transaction, error) {
	const op = "ExtractTransactions"

	if in.Kind == domain.SourcePDF {
		return nil, domain.NewPipelineError(op, in.Kind, "", fmt.Errorf("HeuristicExtractor: pdf input: %w", domain.ErrUnsupportedSource))
	}

	state := &PipelineState{Input: in}
	steps := NewPipeline(&NormalizeStep{Limits: e.limits}, &csvReadStep{}, &csvValidateStep{})
	if err := steps.Execute(ctx, state, tracker); err != nil {
		return nil, domain.NewPipelineError(op, in.Kind, "", err)
	}
	return state.Transactions, nil
}

// csvReadStep reads candidate rows; csvValidateStep filters them through the
// same checks applied to model output.
type csvReadStep struct{}

func (s *csvReadStep) Stage() Stage { return StageExtracting }

func (s *csvReadStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := readCSVRows(state.Text)
	if err != nil {
		return err
	}
	state.Transactions = txs
	return nil
}

type csvValidateStep struct{}

func (s *csvValidateStep) Stage() Stage { return StageValidating }

func (s *csvValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := validateRows(state.Transactions)
	if err != nil {
		return err
	}
	state.Transactions = txs
	return nil
}

// ParseCSVHeuristic extracts transactions from CSV text by locating a header
// row and mapping its columns by name. Rows without a usable amount are
// skipped.
func ParseCSVHeuristic(text string) ([]domain.Transaction, error) {
	rows, err := readCSVRows(text)
	if err != nil {
		return nil, err
	}
	return validateRows(rows)
}

func readCSVRows(text string) ([]domain.Transaction, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		cols   columnMap
		found  bool
		result []domain.Transaction
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed line, often the truncation marker; skip it.
			continue
		}

		if !found {
			if c := mapHeader(record); c.usable() {
				cols, found = c, true
			}
			continue
		}

		if t, ok := rowToTransaction(record, cols); ok {
			result = append(result, t)
		}
	}

	if !found {
		return nil, fmt.Errorf("readCSVRows: no recognisable header row: %w", domain.ErrNoTransactionsFound)
	}
	return result, nil
}

func validateRows(rows []domain.Transaction) ([]domain.Transaction, error) {
	items := make([]interface{}, 0, len(rows))
	for _, t := range rows {
		items = append(items, map[string]interface{}{
			"date":        t.Date,
			"description": t.Description,
			"amount":      t.Amount,
			"type":        string(t.Type),
		})
	}
	txs := ValidateTransactions(items)
	if len(txs) == 0 {
		return nil, fmt.Errorf("validateRows: 0 of %d rows valid: %w", len(rows), domain.ErrNoTransactionsFound)
	}
	return txs, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// first line.
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func mapHeader(record []string) columnMap {
	c := columnMap{date: -1, desc: -1, amount: -1, debit: -1, credit: -1, txType: -1}
	for i, name := range record {
		h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch {
		case c.date < 0 && contains(dateHeaders, h):
			c.date = i
		case c.desc < 0 && contains(descHeaders, h):
			c.desc = i
		case c.amount < 0 && contains(amountHeaders, h):
			c.amount = i
		case c.debit < 0 && contains(debitHeaders, h):
			c.debit = i
		case c.credit < 0 && contains(creditHeaders, h):
			c.credit = i
		case c.txType < 0 && contains(typeHeaders, h):
			c.txType = i
		}
	}
	return c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func rowToTransaction(record []string, cols columnMap) (domain.Transaction, bool) {
	t := domain.Transaction{
		Date:        cell(record, cols.date),
		Description: strings.Join(strings.Fields(cell(record, cols.desc)), " "),
	}

	var amount decimal.Decimal
	switch {
	case cols.debit >= 0 || cols.credit >= 0:
		if d, ok := parseAmount(cell(record, cols.debit)); ok && !d.IsZero() {
			amount, t.Type = d.Abs(), domain.Debit
		} else if c, ok := parseAmount(cell(record, cols.credit)); ok && !c.IsZero() {
			amount, t.Type = c.Abs(), domain.Credit
		} else if cols.amount >= 0 {
			return signedTransaction(t, record, cols)
		} else {
			return t, false
		}
	default:
		return signedTransaction(t, record, cols)
	}

	t.Amount = amount.InexactFloat64()
	return t, true
}

// signedTransaction reads a single amount column: negative is money out,
// unless a type column says otherwise.
func signedTransaction(t domain.Transaction, record []string, cols columnMap) (domain.Transaction, bool) {
	d, ok := parseAmount(cell(record, cols.amount))
	if !ok || d.IsZero() {
		return t, false
	}

	t.Type = domain.Credit
	if d.IsNegative() {
		t.Type = domain.Debit
	}
	switch strings.ToLower(cell(record, cols.txType)) {
	case "debit", "dr", "d", "withdrawal", "payment":
		t.Type = domain.Debit
	case "credit", "cr", "c", "deposit":
		t.Type = domain.Credit
	}

	t.Amount = d.Abs().InexactFloat64()
	return t, true
}

// parseAmount accepts the usual statement spellings: currency symbols,
// thousands separators, decimal commas, parentheses or a trailing minus for negatives, and a
// trailing CR/DR marker.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '£', '$', '€', ' ', '\u00a0', '\'':
			return -1
		}
		return r
	}, s)
	s = normalizeDecimal(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Abs().Neg()
	}
	return d, true
}

// normalizeDecimal rewrites s so that '.' is the only decimal point and no
// grouping separators remain. When both ',' and '.' appear the later one is
// the decimal point. A lone ',' followed by one or two digits is a decimal
// comma ("12,50"); otherwise commas and repeated dots group thousands.
func normalizeDecimal(s string) string {
	comma := strings.LastIndexByte(s, ',')
	dot := strings.LastIndexByte(s, '.')

	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 >= 1 && len(s)-comma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case dot >= 0 && strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
