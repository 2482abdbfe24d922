// Package financial answers stock questions. A ticker is extracted from
// the question, three analyses run in parallel on market data, and their
// results feed price targets and a markdown report.
//
//	extract_symbol -> analyze_stock_data, analyze_market_sentiment, analyze_technical_indicators
//	               -> generate_price_targets -> write_article
package financial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/store"
	"github.com/dshills/analyst-agent/stock"
)

// GraphName identifies the financial graph in events and metrics.
const GraphName = "FinancialGraph"

// Node IDs.
const (
	NodeExtractSymbol     = "extract_symbol"
	NodeStockData         = "analyze_stock_data"
	NodeMarketSentiment   = "analyze_market_sentiment"
	NodeTechnicalAnalysis = "analyze_technical_indicators"
	NodePriceTargets      = "generate_price_targets"
	NodeWriteArticle      = "write_article"
)

// MarketSource is the market data used by the analyses. *stock.Retriever
// implements it.
type MarketSource interface {
	GetStockData(ctx context.Context, symbol, period string) stock.StockData
	GetMarketSentiment(ctx context.Context, symbol string) stock.MarketSentiment
	GetTechnicalIndicators(ctx context.Context, symbol string) stock.TechnicalAnalysis
}

// Targets are price levels for three scenarios.
type Targets struct {
	BaseCase float64 `json:"base_case"`
	BullCase float64 `json:"bull_case"`
	BearCase float64 `json:"bear_case"`
}

// PriceTargets is the structured output of generate_price_targets.
type PriceTargets struct {
	Targets          Targets `json:"targets"`
	Confidence       float64 `json:"confidence"`
	InvestmentThesis string  `json:"investment_thesis"`
	Analysis         string  `json:"analysis"`
}

var priceTargetsSpec = model.ToolSpec{
	Name:        "PriceTargets",
	Description: "Price targets with rationale.",
	Schema: model.ObjectSchema(map[string]any{
		"targets": model.ObjectSchema(map[string]any{
			"base_case": model.NumberProp("Base case price target."),
			"bull_case": model.NumberProp("Bull case price target."),
			"bear_case": model.NumberProp("Bear case price target."),
		}, "base_case", "bull_case", "bear_case"),
		"confidence":        model.NumberProp("Confidence in the targets between 0.0 and 1.0."),
		"investment_thesis": model.StringProp("Investment thesis supporting the targets."),
		"analysis":          model.StringProp("Key assumptions and rationale."),
	}, "targets", "confidence", "investment_thesis", "analysis"),
}

// State is the financial graph state. Messages accumulate; every other
// field is replaced when set.
type State struct {
	Messages          []model.Message          `json:"messages"`
	Symbol            string                   `json:"symbol,omitempty"`
	StockData         *stock.StockData         `json:"stock_data,omitempty"`
	MarketSentiment   *stock.MarketSentiment   `json:"market_sentiment,omitempty"`
	TechnicalAnalysis *stock.TechnicalAnalysis `json:"technical_analysis,omitempty"`
	PriceTargets      *PriceTargets            `json:"price_targets,omitempty"`
	Article           string                   `json:"article,omitempty"`
}

// Reduce merges a node delta into the financial state.
func Reduce(prev, delta State) State {
	prev.Messages = append(prev.Messages, delta.Messages...)
	if delta.Symbol != "" {
		prev.Symbol = delta.Symbol
	}
	if delta.StockData != nil {
		prev.StockData = delta.StockData
	}
	if delta.MarketSentiment != nil {
		prev.MarketSentiment = delta.MarketSentiment
	}
	if delta.TechnicalAnalysis != nil {
		prev.TechnicalAnalysis = delta.TechnicalAnalysis
	}
	if delta.PriceTargets != nil {
		prev.PriceTargets = delta.PriceTargets
	}
	if delta.Article != "" {
		prev.Article = delta.Article
	}
	return prev
}

// Deps are the collaborators of the financial graph.
type Deps struct {
	Models  model.Loader
	Market  MarketSource
	Store   store.Store[State]
	Emitter emit.Emitter
	Logger  *zap.Logger
	Now     func() time.Time
}

type nodes struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New builds the financial graph.
func New(cfg Config, deps Deps, opts ...graph.Option) (*graph.Engine[State], error) {
	if deps.Models == nil {
		return nil, errors.New("financial: model loader is required")
	}
	if deps.Market == nil {
		return nil, errors.New("financial: market source is required")
	}
	if deps.Store == nil {
		deps.Store = store.NewMemStore[State]()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	n := &nodes{cfg: cfg, deps: deps, log: deps.Logger.Named("financial")}

	e := graph.New(Reduce, deps.Store, deps.Emitter, append([]graph.Option{graph.WithName(GraphName)}, opts...)...)
	for _, node := range []struct {
		id string
		fn graph.NodeFunc[State]
	}{
		{NodeExtractSymbol, n.extractSymbol},
		{NodeStockData, n.analyzeStockData},
		{NodeMarketSentiment, n.analyzeMarketSentiment},
		{NodeTechnicalAnalysis, n.analyzeTechnicalIndicators},
		{NodePriceTargets, n.generatePriceTargets},
		{NodeWriteArticle, n.writeArticle},
	} {
		if err := e.Add(node.id, node.fn); err != nil {
			return nil, err
		}
	}
	if err := e.StartAt(NodeExtractSymbol); err != nil {
		return nil, err
	}
	for _, edge := range [][2]string{
		{NodeExtractSymbol, NodeStockData},
		{NodeExtractSymbol, NodeMarketSentiment},
		{NodeExtractSymbol, NodeTechnicalAnalysis},
		{NodeStockData, NodePriceTargets},
		{NodeMarketSentiment, NodePriceTargets},
		{NodeTechnicalAnalysis, NodePriceTargets},
		{NodePriceTargets, NodeWriteArticle},
		{NodeWriteArticle, graph.END},
	} {
		if err := e.Connect(edge[0], edge[1], nil); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// cleanSymbol normalises a model answer such as `"aapl"` or "Output: AAPL".
func cleanSymbol(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Trim(strings.TrimSpace(s), "\"'`$ .")
	return strings.ToUpper(s)
}

func (n *nodes) extractSymbol(ctx context.Context, s State) graph.NodeResult[State] {
	question := model.Last(s.Messages).Content
	if strings.TrimSpace(question) == "" {
		return graph.NodeResult[State]{}
	}
	answer, err := interview.Complete(ctx, n.deps.Models, n.cfg.AnalysisModel, []model.Message{
		model.System(n.cfg.SymbolInstructions),
		model.User(question),
	})
	if err != nil {
		return graph.Fail[State](NodeExtractSymbol, err)
	}
	symbol := cleanSymbol(answer)
	n.log.Debug("symbol extracted", zap.String("symbol", symbol))
	return graph.NodeResult[State]{Delta: State{Symbol: symbol}}
}

// analyze sends data as JSON to the analysis model.
func (n *nodes) analyze(ctx context.Context, instructions string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return interview.Complete(ctx, n.deps.Models, n.cfg.AnalysisModel, []model.Message{
		model.System(instructions),
		model.User(string(payload)),
	})
}

func (n *nodes) analyzeStockData(ctx context.Context, s State) graph.NodeResult[State] {
	data := n.deps.Market.GetStockData(ctx, s.Symbol, n.cfg.HistoryPeriod)
	if !data.Failed() {
		analysis, err := n.analyze(ctx, n.cfg.StockAnalysisInstructions, data)
		if err != nil {
			return graph.Fail[State](NodeStockData, err)
		}
		data.Analysis = analysis
	}
	return graph.NodeResult[State]{Delta: State{StockData: &data}}
}

func (n *nodes) analyzeMarketSentiment(ctx context.Context, s State) graph.NodeResult[State] {
	data := n.deps.Market.GetMarketSentiment(ctx, s.Symbol)
	if data.Error == "" {
		analysis, err := n.analyze(ctx, n.cfg.MarketSentimentInstructions, data)
		if err != nil {
			return graph.Fail[State](NodeMarketSentiment, err)
		}
		data.Analysis = analysis
	}
	return graph.NodeResult[State]{Delta: State{MarketSentiment: &data}}
}

func (n *nodes) analyzeTechnicalIndicators(ctx context.Context, s State) graph.NodeResult[State] {
	data := n.deps.Market.GetTechnicalIndicators(ctx, s.Symbol)
	if data.Error == "" {
		analysis, err := n.analyze(ctx, n.cfg.TechnicalAnalysisInstructions, data)
		if err != nil {
			return graph.Fail[State](NodeTechnicalAnalysis, err)
		}
		data.Analysis = analysis
	}
	return graph.NodeResult[State]{Delta: State{TechnicalAnalysis: &data}}
}

type targetInput struct {
	StockData         *stock.StockData         `json:"stock_data"`
	MarketSentiment   *stock.MarketSentiment   `json:"market_sentiment"`
	TechnicalAnalysis *stock.TechnicalAnalysis `json:"technical_analysis"`
}

func (n *nodes) generatePriceTargets(ctx context.Context, s State) graph.NodeResult[State] {
	if s.StockData == nil || s.StockData.Failed() {
		return graph.NodeResult[State]{Delta: State{PriceTargets: &PriceTargets{}}}
	}
	payload, err := json.Marshal(targetInput{s.StockData, s.MarketSentiment, s.TechnicalAnalysis})
	if err != nil {
		return graph.Fail[State](NodePriceTargets, err)
	}
	llm, err := n.deps.Models.Load(n.cfg.AnalysisModel)
	if err != nil {
		return graph.Fail[State](NodePriceTargets, err)
	}
	targets, err := model.Structured[PriceTargets](ctx, llm, []model.Message{
		model.System(n.cfg.PriceTargetInstructions),
		model.User(string(payload)),
	}, priceTargetsSpec)
	if err != nil {
		return graph.Fail[State](NodePriceTargets, err)
	}
	return graph.NodeResult[State]{Delta: State{PriceTargets: &targets}}
}

// ArticleData is the JSON document the article model writes from.
type ArticleData struct {
	Title             string                 `json:"title"`
	Date              string                 `json:"date"`
	ExecutiveSummary  string                 `json:"executive_summary"`
	CompanyOverview   string                 `json:"company_overview"`
	MarketAnalysis    string                 `json:"market_analysis"`
	TechnicalAnalysis string                 `json:"technical_analysis"`
	FinancialMetrics  map[string]any         `json:"financial_metrics"`
	InvestmentThesis  string                 `json:"investment_thesis"`
	RiskAnalysis      interview.RiskAnalysis `json:"risk_analysis"`
	PriceTargets      Targets                `json:"price_targets"`
	ConfidenceScore   float64                `json:"confidence_score"`
	Errors            []string               `json:"errors,omitempty"`
}

func (n *nodes) writeArticle(ctx context.Context, s State) graph.NodeResult[State] {
	var (
		data      stock.StockData
		sentiment stock.MarketSentiment
		technical stock.TechnicalAnalysis
		targets   PriceTargets
	)
	if s.StockData != nil {
		data = *s.StockData
	}
	if s.MarketSentiment != nil {
		sentiment = *s.MarketSentiment
	}
	if s.TechnicalAnalysis != nil {
		technical = *s.TechnicalAnalysis
	}
	if s.PriceTargets != nil {
		targets = *s.PriceTargets
	}

	symbol := s.Symbol
	if symbol == "" {
		symbol = "Unknown"
	}

	writer, err := n.deps.Models.Load(n.cfg.ArticleModel)
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}
	analyst, err := n.deps.Models.Load(n.cfg.AnalysisModel)
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}

	summary, err := interview.GenerateExecutiveSummary(ctx, writer, n.cfg.ExecutiveSummaryInstructions, targetInputWithTargets{
		targetInput:  targetInput{s.StockData, s.MarketSentiment, s.TechnicalAnalysis},
		PriceTargets: s.PriceTargets,
	})
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}
	risks, err := interview.CombineRiskAnalysis(ctx, analyst, n.cfg.RiskAnalysisInstructions, interview.RiskInput{
		StockRisks:     data.Risks,
		MarketRisks:    sentiment.Risks,
		TechnicalRisks: technical.Risks,
	})
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}

	article := ArticleData{
		Title:             "Financial Analysis Report: " + symbol,
		Date:              n.deps.Now().Format("2006-01-02"),
		ExecutiveSummary:  summary,
		CompanyOverview:   companyOverview(data.CompanyInfo),
		MarketAnalysis:    sentiment.MarketAnalysis,
		TechnicalAnalysis: technical.Analysis,
		FinancialMetrics:  financialMetrics(data),
		InvestmentThesis:  targets.InvestmentThesis,
		RiskAnalysis:      risks,
		PriceTargets:      targets.Targets,
		ConfidenceScore: interview.CalculateConfidenceScore(
			data.Confidence, sentiment.Confidence, technical.Confidence, targets.Confidence,
		),
	}
	for _, e := range []string{data.Error, sentiment.Error, technical.Error} {
		if e != "" {
			article.Errors = append(article.Errors, e)
		}
	}

	payload, err := json.Marshal(article)
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}
	text, err := interview.Complete(ctx, n.deps.Models, n.cfg.ArticleModel, []model.Message{
		model.System(n.cfg.FinancialArticleInstructions),
		model.User(string(payload)),
	})
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}
	return graph.NodeResult[State]{Delta: State{Article: text, Messages: []model.Message{model.Assistant(text)}}}
}

type targetInputWithTargets struct {
	targetInput
	PriceTargets *PriceTargets `json:"price_targets"`
}

func companyOverview(info stock.CompanyInfo) string {
	if info.Name == "" {
		return ""
	}
	overview := info.Name
	switch {
	case info.Sector != "" && info.Industry != "":
		overview += fmt.Sprintf(" operates in the %s sector (%s)", info.Sector, info.Industry)
	case info.Sector != "":
		overview += fmt.Sprintf(" operates in the %s sector", info.Sector)
	}
	return overview + "."
}

func financialMetrics(d stock.StockData) map[string]any {
	if d.Failed() {
		return map[string]any{}
	}
	return map[string]any{
		"current_price":  d.CurrentPrice,
		"daily_change":   d.DailyChange,
		"volume":         d.Volume,
		"high_52w":       d.High52W,
		"low_52w":        d.Low52W,
		"market_cap":     d.CompanyInfo.MarketCap,
		"pe_ratio":       d.CompanyInfo.PERatio,
		"dividend_yield": d.CompanyInfo.DividendYield,
	}
}

// Answer runs the graph on a conversation and returns the messages it
// added (the article).
func Answer(ctx context.Context, e *graph.Engine[State], runID string, messages []model.Message) ([]model.Message, error) {
	final, err := e.Run(ctx, runID, State{Messages: messages})
	if err != nil {
		return nil, err
	}
	return final.Messages[len(messages):], nil
}
