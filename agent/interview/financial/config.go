package financial

import (
	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/internal/config"
)

// SymbolInstructions extracts a ticker from the question.
const SymbolInstructions = `You are a financial assistant that extracts stock symbols from text.
Extract the stock symbol from the given text. Return ONLY the stock symbol in uppercase.
If multiple symbols are found, return the most relevant one. If no symbol is found, return an empty string.
Examples:
- Input: "What's the current price of Apple stock?"
  Output: AAPL
- Input: "How is Tesla performing today?"
  Output: TSLA
- Input: "Tell me about the weather"
  Output: ""
`

// Config configures the financial graph. The shared interview settings
// provide the models and prompts.
type Config struct {
	interview.Config `yaml:",inline"`

	SymbolInstructions string `yaml:"symbol_instructions"`
	// HistoryPeriod is the Yahoo range used for price history ("1y", "6mo", ...).
	HistoryPeriod string `yaml:"history_period"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Config:             interview.DefaultConfig(),
		SymbolInstructions: SymbolInstructions,
		HistoryPeriod:      "1y",
	}
}

// FromConfigurable overlays the "financial" configuration section on
// DefaultConfig.
func FromConfigurable(values map[string]any) (Config, error) {
	cfg := DefaultConfig()
	if err := config.Overlay(&cfg, values); err != nil {
		return Config{}, err
	}
	if err := cfg.Config.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
