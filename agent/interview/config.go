package interview

import (
	"fmt"
	"os"

	"github.com/dshills/analyst-agent/internal/config"
	"github.com/dshills/analyst-agent/internal/prompt"
)

// DefaultModel is used by every model slot unless configured.
const DefaultModel = "openai/gpt-4o-mini"

// Config holds the models, prompts and limits shared by the interview
// graph and its subgraphs.
type Config struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`

	QueryModel    string `yaml:"query_model"`
	ResponseModel string `yaml:"response_model"`
	AnalysisModel string `yaml:"analysis_model"`
	ArticleModel  string `yaml:"article_model"`

	MaxNumTurns      int `yaml:"max_num_turns"`
	WebMaxResults    int `yaml:"web_max_results"`
	WikipediaMaxDocs int `yaml:"wikipedia_max_docs"`

	QuestionInstructions          string `yaml:"question_instructions"`
	SearchInstructions            string `yaml:"search_instructions"`
	AnswerInstructions            string `yaml:"answer_instructions"`
	SectionWriterInstructions     string `yaml:"section_writer_instructions"`
	ClassificationInstructions    string `yaml:"classification_instructions"`
	StockAnalysisInstructions     string `yaml:"stock_analysis_instructions"`
	MarketSentimentInstructions   string `yaml:"market_sentiment_instructions"`
	TechnicalAnalysisInstructions string `yaml:"technical_analysis_instructions"`
	PriceTargetInstructions       string `yaml:"price_target_instructions"`
	FinancialArticleInstructions  string `yaml:"financial_article_instructions"`
	GeneralArticleInstructions    string `yaml:"general_article_instructions"`
	ExecutiveSummaryInstructions  string `yaml:"executive_summary_instructions"`
	RiskAnalysisInstructions      string `yaml:"risk_analysis_instructions"`
}

// DefaultConfig returns the built-in configuration. The Tavily key comes
// from TAVILY_API_KEY.
func DefaultConfig() Config {
	return Config{
		TavilyAPIKey:                  os.Getenv("TAVILY_API_KEY"),
		QueryModel:                    DefaultModel,
		ResponseModel:                 DefaultModel,
		AnalysisModel:                 DefaultModel,
		ArticleModel:                  DefaultModel,
		MaxNumTurns:                   2,
		WebMaxResults:                 3,
		WikipediaMaxDocs:              2,
		QuestionInstructions:          QuestionInstructions,
		SearchInstructions:            SearchInstructions,
		AnswerInstructions:            AnswerInstructions,
		SectionWriterInstructions:     SectionWriterInstructions,
		ClassificationInstructions:    ClassificationInstructions,
		StockAnalysisInstructions:     StockAnalysisInstructions,
		MarketSentimentInstructions:   MarketSentimentInstructions,
		TechnicalAnalysisInstructions: TechnicalAnalysisInstructions,
		PriceTargetInstructions:       PriceTargetInstructions,
		FinancialArticleInstructions:  FinancialArticleInstructions,
		GeneralArticleInstructions:    GeneralArticleInstructions,
		ExecutiveSummaryInstructions:  ExecutiveSummaryInstructions,
		RiskAnalysisInstructions:      RiskAnalysisInstructions,
	}
}

// FromConfigurable overlays configurable values (the "interview" section
// of the configuration file) on DefaultConfig.
func FromConfigurable(values map[string]any) (Config, error) {
	cfg := DefaultConfig()
	if err := config.Overlay(&cfg, values); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the templates rendered with placeholders. Graphs that
// embed Config call it from their own loaders.
func (c Config) Validate() error {
	for _, t := range []struct {
		key, tmpl string
		vars      []string
	}{
		{"question_instructions", c.QuestionInstructions, []string{"goals"}},
		{"answer_instructions", c.AnswerInstructions, []string{"goals", "context"}},
		{"section_writer_instructions", c.SectionWriterInstructions, []string{"focus"}},
	} {
		if err := prompt.Validate(t.tmpl, t.vars...); err != nil {
			return fmt.Errorf("%s: %w", t.key, err)
		}
	}
	return nil
}
