package interview

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/graph/model"
)

func TestCalculateConfidenceScore(t *testing.T) {
	assert.Equal(t, 0.0, CalculateConfidenceScore())
	assert.Equal(t, 0.8, CalculateConfidenceScore(0.8, 0.8, 0.8))
	assert.Equal(t, 0.667, CalculateConfidenceScore(1, 1, 0))
	assert.Equal(t, 0.35, CalculateConfidenceScore(0.7, 0, 0.7, 0))
}

func TestGenerateExecutiveSummary(t *testing.T) {
	llm := &model.MockChatModel{Responses: []model.ChatOut{{Text: "Buy."}}}
	got, err := GenerateExecutiveSummary(context.Background(), llm, ExecutiveSummaryInstructions, map[string]any{"symbol": "ACME"})
	require.NoError(t, err)
	assert.Equal(t, "Buy.", got)

	msgs := llm.Calls()[0].Messages
	assert.Equal(t, ExecutiveSummaryInstructions, msgs[0].Content)
	assert.JSONEq(t, `{"symbol":"ACME"}`, msgs[1].Content)
}

func TestCombineRiskAnalysis(t *testing.T) {
	llm := &model.MockChatModel{Responses: []model.ChatOut{{Text: "Moderate risk."}}}
	got, err := CombineRiskAnalysis(context.Background(), llm, RiskAnalysisInstructions, RiskInput{
		StockRisks:     []string{"RSI overbought"},
		MarketRisks:    []string{"Lawsuit pending", "RSI overbought"},
		TechnicalRisks: []string{""},
		MarketRisk:     0.6,
		TechnicalRisk:  0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Moderate risk.", got.Analysis)
	assert.Equal(t, []string{"RSI overbought", "Lawsuit pending"}, got.RiskFactors)
	assert.Equal(t, 0.3, got.RiskScore)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(llm.Calls()[0].Messages[1].Content), &sent))
	assert.Contains(t, sent, "stock_risks")
}

func TestAnalyst(t *testing.T) {
	a := Analyst{Name: "Ada"}.OrDefault()
	assert.Equal(t, "Ada", a.Name)
	assert.Equal(t, DefaultAnalystRole, a.Role)
	assert.True(t, Analyst{}.IsZero())
	assert.Equal(t,
		"Name: Generic Analyst\nRole: Research Analyst\nAffiliation: Research Organization\nDescription: "+DefaultAnalystDescription+"\n",
		DefaultAnalyst().Persona())
}

func TestFromConfigurable(t *testing.T) {
	cfg, err := FromConfigurable(map[string]any{"query_model": "anthropic/claude-3-5-haiku-latest", "max_num_turns": 4})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3-5-haiku-latest", cfg.QueryModel)
	assert.Equal(t, 4, cfg.MaxNumTurns)
	assert.Equal(t, DefaultModel, cfg.ResponseModel)
	assert.Equal(t, QuestionInstructions, cfg.QuestionInstructions)

	_, err = FromConfigurable(map[string]any{"no_such_field": true})
	assert.Error(t, err)

	_, err = FromConfigurable(map[string]any{"section_writer_instructions": "Focus on {topic}"})
	assert.ErrorContains(t, err, "section_writer_instructions")
}
