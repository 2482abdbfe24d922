package market

import (
	"fmt"
	"time"

	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/internal/config"
	"github.com/dshills/analyst-agent/internal/prompt"
)

// DateLayout is the format of Config.CurrentDate.
const DateLayout = "2006-01-02"

// Config configures the market graph.
type Config struct {
	// TrendModel writes the trend and sentiment analyses.
	TrendModel string `yaml:"trend_model"`
	// AnalysisModel writes the report.
	AnalysisModel string `yaml:"analysis_model"`
	// QualityModel reviews the report.
	QualityModel string `yaml:"quality_model"`

	TrendsTemplate         string `yaml:"market_trends_template"`
	SentimentTemplate      string `yaml:"market_sentiment_template"`
	ReportTemplate         string `yaml:"market_report_template"`
	QualityControlTemplate string `yaml:"quality_control_template"`

	// CurrentDate anchors the analysis. Empty means today.
	CurrentDate string `yaml:"current_date"`
	// MaxRevisions bounds how often a rejected report is rewritten.
	MaxRevisions int `yaml:"max_revisions"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		TrendModel:             interview.DefaultModel,
		AnalysisModel:          interview.DefaultModel,
		QualityModel:           interview.DefaultModel,
		TrendsTemplate:         TrendsTemplate,
		SentimentTemplate:      SentimentTemplate,
		ReportTemplate:         ReportTemplate,
		QualityControlTemplate: QualityControlTemplate,
		MaxRevisions:           1,
	}
}

// FromConfigurable overlays the "market" configuration section on
// DefaultConfig.
func FromConfigurable(values map[string]any) (Config, error) {
	cfg := DefaultConfig()
	if err := config.Overlay(&cfg, values); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for key, tmpl := range map[string]string{
		"market_trends_template":    c.TrendsTemplate,
		"market_sentiment_template": c.SentimentTemplate,
		"market_report_template":    c.ReportTemplate,
	} {
		if err := prompt.Validate(tmpl, "current_date"); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (c Config) date(now func() time.Time) string {
	if c.CurrentDate != "" {
		return c.CurrentDate
	}
	return now().Format(DateLayout)
}
