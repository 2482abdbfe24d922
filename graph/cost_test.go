package graph

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestCostTracker_Record(t *testing.T) {
	ct := NewCostTracker("USD")
	if err := ct.RecordLLMCall("openai/gpt-4o-mini", 1_000_000, 1_000_000, "ask_question"); err != nil {
		t.Fatalf("RecordLLMCall: %v", err)
	}
	if err := ct.RecordLLMCall("unknown-model", 10, 10, "n"); err != nil {
		t.Fatalf("RecordLLMCall: %v", err)
	}
	if err := ct.RecordLLMCall("gpt-4o", -1, 0, "n"); err == nil {
		t.Error("negative token count should fail")
	}

	if got := ct.TotalCost(); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("TotalCost() = %v, want 0.75", got)
	}
	if got := ct.CostByModel()["gpt-4o-mini"]; math.Abs(got-0.75) > 1e-9 {
		t.Errorf("gpt-4o-mini cost = %v", got)
	}
	in, out := ct.TokenUsage()
	if in != 1_000_010 || out != 1_000_010 {
		t.Errorf("TokenUsage() = %d, %d", in, out)
	}

	ct.SetCustomPricing("unknown-model", 1_000_000, 0)
	ct.RecordUsage(context.Background(), "unknown-model", 1, 0)
	if got := ct.TotalCost(); math.Abs(got-1.75) > 1e-9 {
		t.Errorf("TotalCost() after custom pricing = %v, want 1.75", got)
	}
}

func TestCostTracker_CallHistory(t *testing.T) {
	ct := NewCostTracker("USD").WithCallHistory(3)
	for _, node := range []string{"a", "b", "c", "d", "e"} {
		if err := ct.RecordLLMCall("gpt-4o-mini", 100, 0, node); err != nil {
			t.Fatalf("RecordLLMCall: %v", err)
		}
	}

	calls := ct.Calls()
	if len(calls) != 3 {
		t.Fatalf("retained %d calls, want 3", len(calls))
	}
	for i, want := range []string{"c", "d", "e"} {
		if calls[i].NodeID != want {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i].NodeID, want)
		}
	}
	if in, _ := ct.TokenUsage(); in != 500 {
		t.Errorf("totals must cover evicted calls, input tokens = %d", in)
	}
	if !strings.Contains(ct.String(), "Calls: 5") {
		t.Errorf("String() = %s", ct.String())
	}

	ct.WithCallHistory(1)
	if calls := ct.Calls(); len(calls) != 1 || calls[0].NodeID != "e" {
		t.Errorf("shrunk history = %+v", calls)
	}
}

func TestCostTracker_DefaultHistoryBound(t *testing.T) {
	ct := NewCostTracker("USD")
	for i := 0; i < DefaultCallHistory+10; i++ {
		ct.RecordUsage(context.Background(), "gpt-4o", 1, 1)
	}
	if got := len(ct.Calls()); got != DefaultCallHistory {
		t.Errorf("retained %d calls, want %d", got, DefaultCallHistory)
	}
}
