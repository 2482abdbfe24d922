package general

import (
	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/internal/config"
)

// AnalysisInstructions asks for a JSON analysis of the search results.
const AnalysisInstructions = `You are an expert analyst. Analyze the search results to:
1. Identify key themes and concepts
2. Extract relevant facts and data points
3. Note any conflicting information
4. Assess the reliability of sources
5. Highlight gaps in the information

Return a JSON object with the following structure:
{
    "key_themes": list[str],
    "facts": list[str],
    "conflicts": list[str],
    "source_reliability": dict[str, float],
    "information_gaps": list[str],
    "analysis_summary": str
}`

// Config configures the general graph.
type Config struct {
	interview.Config `yaml:",inline"`

	AnalysisInstructions string `yaml:"analysis_instructions"`
	// SourceConfidence is the confidence credited to each retrieved source.
	SourceConfidence float64 `yaml:"source_confidence"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Config:               interview.DefaultConfig(),
		AnalysisInstructions: AnalysisInstructions,
		SourceConfidence:     0.8,
	}
}

// FromConfigurable overlays the "general" configuration section on
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
