package analyst

import (
	"fmt"
	"os"

	"github.com/dshills/analyst-agent/internal/config"
	"github.com/dshills/analyst-agent/internal/prompt"
)

// AnalystInstructions expects {topic}, {human_analyst_feedback} and
// {max_analysts}.
const AnalystInstructions = `You are tasked with creating a set of AI analyst personas. Follow these instructions carefully:

1. First, review the research topic:
{topic}
        
2. Examine any editorial feedback that has been optionally provided to guide creation of the analysts: 
        
{human_analyst_feedback}
    
3. Determine the most interesting themes based upon documents and / or feedback above.
                    
4. Pick the top {max_analysts} themes.

5. Assign one analyst to each theme.`

// ReviewInstruction is sent to the reviewer with the generated analysts.
const ReviewInstruction = "Please review the generated analysts list. " +
	"If any changes are needed, provide an updated list under the key 'updated_analysts'."

// DefaultMaxAnalysts applies when a run does not set MaxAnalysts.
const DefaultMaxAnalysts = 3

// Config configures the analyst graph.
type Config struct {
	TavilyAPIKey        string `yaml:"tavily_api_key"`
	QueryModel          string `yaml:"query_model"`
	ResponseModel       string `yaml:"response_model"`
	AnalystInstructions string `yaml:"analyst_instructions"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		TavilyAPIKey:        os.Getenv("TAVILY_API_KEY"),
		QueryModel:          "openai/gpt-4o-mini",
		ResponseModel:       "openai/gpt-4o-mini",
		AnalystInstructions: AnalystInstructions,
	}
}

// FromConfigurable overlays the "analyst" configuration section on
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
	if err := prompt.Validate(c.AnalystInstructions, "topic", "human_analyst_feedback", "max_analysts"); err != nil {
		return fmt.Errorf("analyst_instructions: %w", err)
	}
	return nil
}
