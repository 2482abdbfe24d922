package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs for LLM models in USD
// per one million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Static pricing for the models the agents are configured with.
// Prices are subject to change; override with SetCustomPricing.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":                {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-4":                      {InputPer1M: 30.00, OutputPer1M: 60.00},
	"gpt-3.5-turbo":              {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
	"text-embedding-3-small":     {InputPer1M: 0.02},
	"text-embedding-3-large":     {InputPer1M: 0.13},
}

// LLMCall represents a single LLM API invocation with token usage and cost.
type LLMCall struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
	NodeID       string
}

// DefaultCallHistory is how many recent calls a CostTracker keeps.
const DefaultCallHistory = 1000

// CostTracker tracks token usage and cost of LLM calls. It is safe for
// concurrent use; parallel branches record into the same tracker. Totals
// cover every call; Calls keeps only the most recent ones.
//
//	tracker := graph.NewCostTracker("USD")
//	tracker.RecordLLMCall("gpt-4o-mini", 1200, 300, "ask_question")
//	fmt.Printf("$%.4f\n", tracker.TotalCost())
type CostTracker struct {
	Currency string

	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	calls        []LLMCall
	maxCalls     int
	callCount    int64
	total        float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
	metrics      *PrometheusMetrics
}

// NewCostTracker creates a cost tracker with the default pricing table.
func NewCostTracker(currency string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		Currency:   currency,
		pricing:    pricing,
		maxCalls:   DefaultCallHistory,
		modelCosts: make(map[string]float64),
	}
}

// WithCallHistory sets how many recent calls Calls returns. Zero or less
// keeps every call.
func (ct *CostTracker) WithCallHistory(n int) *CostTracker {
	ct.mu.Lock()
	ct.maxCalls = n
	if n > 0 && len(ct.calls) > n {
		ct.calls = append([]LLMCall(nil), ct.calls[len(ct.calls)-n:]...)
	}
	ct.mu.Unlock()
	return ct
}

// WithMetrics mirrors recorded token counts into Prometheus.
func (ct *CostTracker) WithMetrics(m *PrometheusMetrics) *CostTracker {
	ct.mu.Lock()
	ct.metrics = m
	ct.mu.Unlock()
	return ct
}

// RecordLLMCall records one invocation. Unknown models are recorded at zero
// cost. A "provider/" prefix on the model name is ignored for pricing.
func (ct *CostTracker) RecordLLMCall(model string, inputTokens, outputTokens int, nodeID string) error {
	if inputTokens < 0 || outputTokens < 0 {
		return fmt.Errorf("negative token count for %s", model)
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	name := model
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	pricing := ct.pricing[name]
	cost := float64(inputTokens)/1_000_000*pricing.InputPer1M +
		float64(outputTokens)/1_000_000*pricing.OutputPer1M

	call := LLMCall{
		Model:        name,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
		NodeID:       nodeID,
	}
	if ct.maxCalls > 0 && len(ct.calls) >= ct.maxCalls {
		n := copy(ct.calls, ct.calls[len(ct.calls)-ct.maxCalls+1:])
		ct.calls = append(ct.calls[:n], call)
	} else {
		ct.calls = append(ct.calls, call)
	}
	ct.callCount++
	ct.total += cost
	ct.modelCosts[name] += cost
	ct.inputTokens += int64(inputTokens)
	ct.outputTokens += int64(outputTokens)
	ct.metrics.RecordTokens(name, inputTokens, outputTokens)
	return nil
}

// RecordUsage records a call made inside a node; the node ID is taken from
// the context the engine passes to nodes.
func (ct *CostTracker) RecordUsage(ctx context.Context, model string, inputTokens, outputTokens int) {
	_ = ct.RecordLLMCall(model, inputTokens, outputTokens, NodeIDFromContext(ctx))
}

// TotalCost returns the cumulative cost.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.total
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make(map[string]float64, len(ct.modelCosts))
	for k, v := range ct.modelCosts {
		out[k] = v
	}
	return out
}

// Calls returns a copy of the retained calls, oldest first.
func (ct *CostTracker) Calls() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make([]LLMCall, len(ct.calls))
	copy(out, ct.calls)
	return out
}

// TokenUsage returns total input and output token counts.
func (ct *CostTracker) TokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// SetCustomPricing overrides the price of a model.
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// String returns a human-readable summary.
func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return fmt.Sprintf("CostTracker{Calls: %d, TotalCost: %.4f %s, InputTokens: %d, OutputTokens: %d}",
		ct.callCount, ct.total, ct.Currency, ct.inputTokens, ct.outputTokens)
}
