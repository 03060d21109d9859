package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/just-save/internal/domain"
)

func TestParseCSVHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		want    []domain.Transaction
		wantErr error
	}{
		{
			name: "signed amount column",
			csv: "Date,Description,Amount,Balance\n" +
				"01/01/2024,NETFLIX.COM,-15.99,100.00\n" +
				"02/01/2024,SALARY ACME,\"2,500.00\",2600.00\n",
			want: []domain.Transaction{
				{Date: "01/01/2024", Description: "NETFLIX.COM", Amount: 15.99, Type: domain.Debit},
				{Date: "02/01/2024", Description: "SALARY ACME", Amount: 2500, Type: domain.Credit},
			},
		},
		{
			name: "split debit and credit columns",
			csv: "Transaction Date;Memo;Paid out;Paid in\n" +
				"2024-03-01;TESCO   STORES;£42.10;\n" +
				"2024-03-02;REFUND;;£5.00\n",
			want: []domain.Transaction{
				{Date: "2024-03-01", Description: "TESCO STORES", Amount: 42.10, Type: domain.Debit},
				{Date: "2024-03-02", Description: "REFUND", Amount: 5, Type: domain.Credit},
			},
		},
		{
			name: "preamble and malformed row",
			csv: "Account: 12345678\n" +
				"Date,Payee,Amount\n" +
				"05/05/2024,SPOTIFY,(9.99)\n" +
				"06/05/2024,BROKEN,abc\n" +
				"07/05/2024,UBER,12.00-\n",
			want: []domain.Transaction{
				{Date: "05/05/2024", Description: "SPOTIFY", Amount: 9.99, Type: domain.Debit},
				{Date: "07/05/2024", Description: "UBER", Amount: 12, Type: domain.Debit},
			},
		},
		{
			name: "type column overrides sign",
			csv: "Date,Details,Amount,Type\n" +
				"01/06/2024,GYM,30.00,DR\n",
			want: []domain.Transaction{
				{Date: "01/06/2024", Description: "GYM", Amount: 30, Type: domain.Debit},
			},
		},
		{
			name: "semicolon file with decimal commas",
			csv: "Date;Description;Amount\n" +
				"01.02.2024;REWE;-12,50\n" +
				"02.02.2024;GEHALT;1.234,56\n",
			want: []domain.Transaction{
				{Date: "01.02.2024", Description: "REWE", Amount: 12.5, Type: domain.Debit},
				{Date: "02.02.2024", Description: "GEHALT", Amount: 1234.56, Type: domain.Credit},
			},
		},
		{
			name:    "no header",
			csv:     "foo,bar,baz\n1,2,3\n",
			wantErr: domain.ErrNoTransactionsFound,
		},
		{
			name:    "header only",
			csv:     "Date,Description,Amount\n",
			wantErr: domain.ErrNoTransactionsFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCSVHeuristic(tt.csv)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseCSVHeuristic() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCSVHeuristic() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transactions, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("transaction %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.50", "12.5", true},
		{"-12,50", "-12.5", true},
		{"12,5", "12.5", true},
		{"1,234", "1234", true},
		{"1,234.56", "1234.56", true},
		{"1.234,56", "1234.56", true},
		{"1.234.567", "1234567", true},
		{"1 234,56 €", "1234.56", true},
		{"(9.99)", "-9.99", true},
		{"30.00 DR", "-30", true},
		{"abc", "0", false},
		{"", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseAmount(tt.in)
			if ok != tt.ok {
				t.Fatalf("parseAmount(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got.String() != tt.want {
				t.Errorf("parseAmount(%q) = %s, want %s", tt.in, got.String(), tt.want)
			}
		})
	}
}

func TestHeuristicExtractor_PDFUnsupported(t *testing.T) {
	e := NewHeuristicExtractor(DefaultLimits())
	_, err := e.Extract(context.Background(), Input{Content: "text", DeclaredSize: 4, Kind: domain.SourcePDF}, nil)
	if !errors.Is(err, domain.ErrUnsupportedSource) {
		t.Errorf("Extract() error = %v, want ErrUnsupportedSource", err)
	}
}

func TestHeuristicExtractor_Stages(t *testing.T) {
	var stages []Stage
	tracker := NewStageTracker(StageObserverFunc(func(ctx context.Context, s Stage) {
		stages = append(stages, s)
	}))

	e := NewHeuristicExtractor(DefaultLimits())
	csv := "Date,Description,Amount\n01/01/2024,COFFEE,-3.20\n"
	txs, err := e.Extract(context.Background(), Input{Content: csv, DeclaredSize: int64(len(csv)), Kind: domain.SourceCSV}, tracker)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}

	want := []Stage{StageNormalizing, StageExtracting, StageValidating}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, stages[i], want[i])
		}
	}
}
