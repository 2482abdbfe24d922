package research

import (
	"fmt"

	"github.com/dshills/analyst-agent/internal/config"
	"github.com/dshills/analyst-agent/internal/prompt"
	"github.com/dshills/analyst-agent/retrieval"
)

// Config configures the research graph.
type Config struct {
	// QueryModel turns questions into arXiv queries and rewrites them.
	QueryModel string `yaml:"query_model"`
	// AgentModel decides when to call the paper retriever.
	AgentModel string `yaml:"agent_model"`
	GradeModel string `yaml:"grade_model"`
	// AnalysisModel writes the cited answer.
	AnalysisModel string `yaml:"analysis_model"`

	ArxivQueryTemplate string `yaml:"arxiv_query_template"`
	GradeTemplate      string `yaml:"grade_template"`
	RewriteTemplate    string `yaml:"rewrite_template"`
	GenerateTemplate   string `yaml:"generate_template"`

	MaxArxivResults int `yaml:"max_arxiv_results"`
	// MaxRewrites bounds the rewrite -> agent loop. Once reached the answer
	// is written from whatever was retrieved.
	MaxRewrites int `yaml:"max_rewrites"`

	ToolName        string `yaml:"tool_name"`
	ToolDescription string `yaml:"tool_description"`
	Collection      string `yaml:"collection"`
	// SearchKwargs overrides the shared retrieval kwargs field by field.
	SearchKwargs retrieval.SearchKwargs `yaml:"search_kwargs"`
}

// DefaultSearchKwargs are the paper search settings before the shared and
// per-graph overrides apply.
func DefaultSearchKwargs() retrieval.SearchKwargs {
	return retrieval.SearchKwargs{
		SearchType: retrieval.SearchMMR,
		K:          10,
		FetchK:     50,
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		QueryModel:         "openai/gpt-4o-mini",
		AgentModel:         "openai/gpt-4o",
		GradeModel:         "openai/gpt-4o",
		AnalysisModel:      "openai/gpt-4o",
		ArxivQueryTemplate: ArxivQueryTemplate,
		GradeTemplate:      GradeTemplate,
		RewriteTemplate:    RewriteTemplate,
		GenerateTemplate:   GenerateTemplate,
		MaxArxivResults:    100,
		MaxRewrites:        2,
		ToolName:           "retrieve_papers",
		ToolDescription:    "Search and retrieve information from research papers",
		Collection:         "research-papers",
	}
}

// FromConfigurable overlays the "research" configuration section on
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
	for _, t := range []struct {
		key, tmpl string
		vars      []string
	}{
		{"arxiv_query_template", c.ArxivQueryTemplate, []string{"query"}},
		{"grade_template", c.GradeTemplate, []string{"context", "question"}},
		{"rewrite_template", c.RewriteTemplate, []string{"question"}},
		{"generate_template", c.GenerateTemplate, []string{"context", "question"}},
	} {
		if err := prompt.Validate(t.tmpl, t.vars...); err != nil {
			return fmt.Errorf("%s: %w", t.key, err)
		}
	}
	return nil
}
