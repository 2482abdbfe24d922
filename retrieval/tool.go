package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/analyst-agent/graph/model"
)

// DocumentSearcher is anything that answers a text query with documents.
type DocumentSearcher interface {
	Invoke(ctx context.Context, query string) ([]Document, error)
}

// RetrieverTool exposes a DocumentSearcher to a chat model. The tool result
// is the page content of every hit separated by blank lines.
type RetrieverTool struct {
	name        string
	description string
	searcher    DocumentSearcher
}

// NewRetrieverTool wraps searcher as a tool taking a single "query" argument.
func NewRetrieverTool(searcher DocumentSearcher, name, description string) *RetrieverTool {
	return &RetrieverTool{name: name, description: description, searcher: searcher}
}

// Spec implements tool.Tool.
func (t *RetrieverTool) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        t.name,
		Description: t.description,
		Schema: model.ObjectSchema(map[string]any{
			"query": model.StringProp("query to look up in retriever"),
		}, "query"),
	}
}

// Call implements tool.Tool.
func (t *RetrieverTool) Call(ctx context.Context, input map[string]any) (string, error) {
	query, _ := input["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%s: query is required", t.name)
	}
	docs, err := t.searcher.Invoke(ctx, query)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	return strings.Join(parts, "\n\n"), nil
}
