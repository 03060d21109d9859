package pipeline

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dvloznov/just-save/internal/domain"
)

func TestNormalize(t *testing.T) {
	limits := Limits{MaxCSVBytes: 100, MaxPDFBytes: 200, MaxTextLength: 10}

	tests := []struct {
		name    string
		content string
		size    int64
		kind    domain.SourceKind
		want    string
		wantErr error
	}{
		{"short csv", "a,b\n1,2", 7, domain.SourceCSV, "a,b\n1,2", nil},
		{"csv over limit", "x", 101, domain.SourceCSV, "", domain.ErrFileTooLarge},
		{"pdf under its own limit", "text", 150, domain.SourcePDF, "text", nil},
		{"pdf over limit", "text", 201, domain.SourcePDF, "", domain.ErrFileTooLarge},
		{"whitespace only", " \n\t ", 4, domain.SourceCSV, "", domain.ErrEmptyInput},
		{"truncated", "0123456789abc", 13, domain.SourceCSV, "0123456789" + TruncationMarker, nil},
		{"truncated on rune boundary", "ééééééééééééé", 26, domain.SourceCSV, "éééééééééé" + TruncationMarker, nil},
		{"unsupported kind", "x", 1, domain.SourceKind("xlsx"), "", domain.ErrUnsupportedSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.content, tt.size, tt.kind, limits)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Error("Normalize() produced invalid UTF-8")
			}
		})
	}
}

func TestNormalize_DefaultLimits(t *testing.T) {
	content := strings.Repeat("a", DefaultMaxTextLength+5)
	got, err := Normalize(content, int64(len(content)), domain.SourceCSV, Limits{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Error("expected truncation marker")
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, TruncationMarker)); n != DefaultMaxTextLength {
		t.Errorf("kept %d characters, want %d", n, DefaultMaxTextLength)
	}
}

func TestBuildAnalysisPrompt(t *testing.T) {
	debits := []domain.Transaction{
		{Date: "2024-01-01", Description: "NETFLIX.COM", Amount: 15.99, Type: domain.Debit},
		{Date: "2024-02-01", Description: "TESCO", Amount: 40, Type: domain.Debit},
	}

	prompt := BuildAnalysisPrompt(debits, 55.99)

	for _, want := range []string{
		"1. 2024-01-01 | NETFLIX.COM | 15.99\n",
		"2. 2024-02-01 | TESCO | 40.00\n",
		"TOTAL SPENT: 55.99",
		`"transactionIndices"`,
		`- "Software & Tech" - apps, subscriptions, software, domains`,
		`- "Other" - anything that doesn't fit above`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildExtractionPrompts(t *testing.T) {
	csvPrompt := BuildCSVPrompt("Date,Amount\n01/01,-5")
	if !strings.HasSuffix(csvPrompt, "Date,Amount\n01/01,-5") {
		t.Error("CSV prompt should end with the statement text")
	}
	if !strings.Contains(csvPrompt, "separate debit/credit columns") {
		t.Error("CSV prompt should describe split debit/credit columns")
	}

	pdfPrompt := BuildPDFPrompt("Oct 20 DELIVEROO 12.50")
	if !strings.Contains(pdfPrompt, "Oct 20 DELIVEROO 12.50") {
		t.Error("PDF prompt should embed the statement text")
	}
}

func TestBuildExplainPrompt(t *testing.T) {
	a := &domain.Analysis{
		TotalSpent: 100,
		Subscriptions: []domain.Subscription{
			{Name: "Netflix", Amount: 15.99, Frequency: domain.FrequencyMonthly},
		},
		CategorySpending: []domain.CategorySpending{
			{Category: "Entertainment", Total: 15.99, Percentage: 15.99},
		},
	}

	prompt := BuildExplainPrompt(a)
	for _, want := range []string{"Total Spent: 100.00", "- Netflix: 15.99 (monthly)", "- Entertainment: 15.99 (16.0%)"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
