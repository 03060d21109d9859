package audit

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/just-save/internal/domain"
)

func sub(name string, amount float64, f domain.Frequency) domain.Subscription {
	return domain.Subscription{Name: name, Amount: amount, Frequency: f, Confidence: domain.ConfidenceHigh}
}

func TestYearlyAmount(t *testing.T) {
	tests := []struct {
		amount float64
		freq   domain.Frequency
		want   float64
	}{
		{15.99, domain.FrequencyMonthly, 191.88},
		{2.50, domain.FrequencyWeekly, 130},
		{30, domain.FrequencyQuarterly, 120},
		{99, domain.FrequencyAnnual, 99},
		{10, domain.FrequencyUnknown, 120},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			if got := YearlyAmount(tt.amount, tt.freq); got != tt.want {
				t.Errorf("YearlyAmount(%v, %s) = %v, want %v", tt.amount, tt.freq, got, tt.want)
			}
		})
	}
}

func TestBuild_Savings(t *testing.T) {
	items := []Item{
		{Subscription: sub("Netflix", 15.99, domain.FrequencyMonthly), Decision: DecisionCancel},
		{Subscription: sub("Gym", 120, domain.FrequencyAnnual), Decision: DecisionCancel},
		{Subscription: sub("Spotify", 9.99, domain.FrequencyMonthly), Decision: DecisionKeep},
		{Subscription: sub("Cloud", 2.99, domain.FrequencyMonthly), Decision: DecisionInvestigate},
		{Subscription: sub("Unknown", 5, domain.FrequencyUnknown)},
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Build(items, now)

	if r.TotalSubscriptions != 5 || r.CancelledCount != 2 || r.KeepCount != 1 || r.InvestigateCount != 1 {
		t.Errorf("counts = %+v", r)
	}
	if r.YearlySavings != 311.88 {
		t.Errorf("YearlySavings = %v, want 311.88", r.YearlySavings)
	}
	if r.MonthlySavings != 25.99 {
		t.Errorf("MonthlySavings = %v, want 25.99", r.MonthlySavings)
	}
	if r.Items[2].YearlyAmount != 119.88 {
		t.Errorf("Spotify YearlyAmount = %v, want 119.88", r.Items[2].YearlyAmount)
	}
	if !r.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v", r.GeneratedAt)
	}
}

func TestBuild_NothingCancelled(t *testing.T) {
	r := Build([]Item{{Subscription: sub("Netflix", 15.99, domain.FrequencyMonthly), Decision: DecisionKeep}}, time.Now())
	if r.YearlySavings != 0 || r.MonthlySavings != 0 {
		t.Errorf("savings = %v / %v, want 0", r.YearlySavings, r.MonthlySavings)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		input   string
		want    Decision
		wantErr bool
	}{
		{"cancel", DecisionCancel, false},
		{" KEEP ", DecisionKeep, false},
		{"Investigate", DecisionInvestigate, false},
		{"", DecisionNone, false},
		{"delete", DecisionNone, true},
	}

	for _, tt := range tests {
		got, err := ParseDecision(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDecision(%q) = (%q, %v), want (%q, wantErr %v)", tt.input, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestDecide(t *testing.T) {
	subs := []domain.Subscription{
		sub("Netflix", 15.99, domain.FrequencyMonthly),
		sub("Spotify", 9.99, domain.FrequencyMonthly),
		sub("Gym", 30, domain.FrequencyMonthly),
	}

	items := Decide(subs, []string{"netflix"}, []string{"GYM"}, []string{"Spotify", "netflix"})

	want := []Decision{DecisionCancel, DecisionKeep, DecisionInvestigate}
	for i, it := range items {
		if it.Decision != want[i] {
			t.Errorf("%s: Decision = %q, want %q", it.Name, it.Decision, want[i])
		}
	}
}

func TestItem_JSON(t *testing.T) {
	b, err := json.Marshal(Item{Subscription: sub("Netflix", 15.99, domain.FrequencyMonthly), Decision: DecisionCancel})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"name":"Netflix"`, `"decision":"cancel"`, `"frequency":"monthly"`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("JSON %s missing %s", b, want)
		}
	}
}
