package stock

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// TechnicalAnalysis summarises indicator readings for a symbol.
type TechnicalAnalysis struct {
	Symbol     string             `json:"symbol"`
	Indicators map[string]any     `json:"indicators"`
	Signals    map[string]string  `json:"signals"`
	Analysis   string             `json:"analysis"`
	Risks      []string           `json:"risks"`
	Confidence float64            `json:"confidence"`
	Error      string             `json:"error,omitempty"`
	Scores     map[string]float64 `json:"-"`
}

// MarketSentiment combines price momentum with recent news coverage.
type MarketSentiment struct {
	Symbol           string         `json:"symbol"`
	MarketAnalysis   string         `json:"market_analysis"`
	SentimentSummary string         `json:"sentiment_summary"`
	Risks            []string       `json:"risks"`
	Confidence       float64        `json:"confidence"`
	NewsCategories   map[string]int `json:"news_categories"`
	Headlines        []string       `json:"headlines,omitempty"`
	Analysis         string         `json:"analysis,omitempty"`
	Error            string         `json:"error,omitempty"`
}

var signalScore = map[string]float64{
	"strong_bullish": 2,
	"bullish":        1,
	"oversold":       1,
	"neutral":        0,
	"overbought":     -1,
	"bearish":        -1,
	"strong_bearish": -2,
}

// GetTechnicalIndicators derives indicator readings from the one-year
// snapshot of symbol.
func (r *Retriever) GetTechnicalIndicators(ctx context.Context, symbol string) TechnicalAnalysis {
	d := r.GetStockData(ctx, symbol, "1y")
	if d.Failed() {
		return TechnicalAnalysis{Symbol: d.Symbol, Error: d.Error}
	}

	ta := TechnicalAnalysis{
		Symbol: d.Symbol,
		Indicators: map[string]any{
			"rsi":             d.RSI,
			"macd":            d.TechnicalSignals["macd"],
			"macd_histogram":  d.MACD,
			"sma_20":          d.SMA20,
			"sma_50":          d.SMA50,
			"bollinger_bands": d.BollingerBands,
		},
		Signals:    d.TechnicalSignals,
		Risks:      d.Risks,
		Confidence: d.Confidence,
		Scores:     map[string]float64{},
	}
	if ta.Risks == nil {
		ta.Risks = []string{}
	}

	names := make([]string, 0, len(d.TechnicalSignals))
	for name := range d.TechnicalSignals {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	var total float64
	for _, name := range names {
		sig := d.TechnicalSignals[name]
		ta.Scores[name] = signalScore[sig]
		total += signalScore[sig]
		parts = append(parts, fmt.Sprintf("%s %s", strings.ReplaceAll(name, "_", " "), sig))
	}
	ta.Analysis = fmt.Sprintf("%s closed at %.2f (%+.2f%%). Overall technical bias: %s (%s).",
		d.Symbol, d.CurrentPrice, d.DailyChange, bias(total), strings.Join(parts, ", "))
	return ta
}

// GetMarketSentiment scores symbol from technical signals and the mix of
// recent news categories. Risk and regulatory headlines count against it.
func (r *Retriever) GetMarketSentiment(ctx context.Context, symbol string) MarketSentiment {
	d := r.GetStockData(ctx, symbol, "1y")
	if d.Failed() {
		return MarketSentiment{Symbol: d.Symbol, Error: d.Error}
	}
	news := r.GetMarketNews(ctx, d.Symbol)
	if err := r.IndexNews(ctx, news); err != nil {
		r.logger.Warn("news indexing failed", zap.String("symbol", d.Symbol), zap.Error(err))
	}

	ms := MarketSentiment{Symbol: d.Symbol, NewsCategories: map[string]int{}, Risks: []string{}}
	var score float64
	for _, sig := range d.TechnicalSignals {
		score += signalScore[sig]
	}

	realNews := 0
	for _, n := range news {
		if n.Category == "system" {
			continue
		}
		realNews++
		ms.NewsCategories[n.Category]++
		ms.Headlines = append(ms.Headlines, n.Title)
		switch n.Category {
		case "risk", "regulatory":
			score -= 0.5
			ms.Risks = append(ms.Risks, n.Title)
		case "earnings", "partnership", "product":
			score += 0.25
		}
	}
	if d.DailyChange > 0 {
		score += 0.5
	} else if d.DailyChange < 0 {
		score -= 0.5
	}

	ms.SentimentSummary = titleCase(bias(score))
	ms.Risks = append(ms.Risks, d.Risks...)

	// More signals and more coverage raise confidence, capped at 0.9.
	ms.Confidence = math.Min(0.9, 0.5+0.05*float64(len(d.TechnicalSignals))+0.02*float64(realNews))
	ms.Confidence = math.Round(ms.Confidence*1000) / 1000

	ms.MarketAnalysis = fmt.Sprintf("%s sentiment is %s based on %d technical signals and %d recent headlines; 52-week range %.2f-%.2f.",
		d.Symbol, strings.ToLower(ms.SentimentSummary), len(d.TechnicalSignals), realNews, d.Low52W, d.High52W)
	return ms
}

func bias(score float64) string {
	switch {
	case score >= 1:
		return "bullish"
	case score <= -1:
		return "bearish"
	default:
		return "neutral"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
