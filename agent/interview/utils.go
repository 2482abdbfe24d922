package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dshills/analyst-agent/graph/model"
)

// Complete loads spec from models and returns the text answer to msgs.
func Complete(ctx context.Context, models model.Loader, spec string, msgs []model.Message) (string, error) {
	m, err := models.Load(spec)
	if err != nil {
		return "", err
	}
	out, err := m.Chat(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// CalculateConfidenceScore averages scores, rounded to three decimals.
// No scores yields 0.
func CalculateConfidenceScore(scores ...float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return math.Round(sum/float64(len(scores))*1000) / 1000
}

// GenerateExecutiveSummary asks m to summarise data, sent as JSON.
func GenerateExecutiveSummary(ctx context.Context, m model.ChatModel, instructions string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode summary input: %w", err)
	}
	out, err := m.Chat(ctx, []model.Message{model.System(instructions), model.User(string(payload))}, nil)
	if err != nil {
		return "", fmt.Errorf("executive summary: %w", err)
	}
	return out.Text, nil
}

// RiskInput collects the risks found by the individual analyses.
type RiskInput struct {
	StockRisks     []string `json:"stock_risks"`
	MarketRisks    []string `json:"market_risks"`
	TechnicalRisks []string `json:"technical_risks"`

	MarketRisk      float64 `json:"market_risk,omitempty"`
	TechnicalRisk   float64 `json:"technical_risk,omitempty"`
	FundamentalRisk float64 `json:"fundamental_risk,omitempty"`
}

// RiskAnalysis is the combined risk assessment.
type RiskAnalysis struct {
	Analysis    string   `json:"analysis"`
	RiskFactors []string `json:"risk_factors"`
	RiskScore   float64  `json:"risk_score"`
}

// CombineRiskAnalysis asks m for a narrative over all risks. RiskFactors is
// the de-duplicated union of the input risks and RiskScore the mean of the
// numeric risk levels.
func CombineRiskAnalysis(ctx context.Context, m model.ChatModel, instructions string, in RiskInput) (RiskAnalysis, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return RiskAnalysis{}, fmt.Errorf("encode risk input: %w", err)
	}
	out, err := m.Chat(ctx, []model.Message{model.System(instructions), model.User(string(payload))}, nil)
	if err != nil {
		return RiskAnalysis{}, fmt.Errorf("risk analysis: %w", err)
	}

	seen := map[string]bool{}
	factors := []string{}
	for _, group := range [][]string{in.StockRisks, in.MarketRisks, in.TechnicalRisks} {
		for _, r := range group {
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			factors = append(factors, r)
		}
	}
	return RiskAnalysis{
		Analysis:    out.Text,
		RiskFactors: factors,
		RiskScore:   CalculateConfidenceScore(in.MarketRisk, in.TechnicalRisk, in.FundamentalRisk),
	}, nil
}
