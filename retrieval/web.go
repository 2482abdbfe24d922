package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/analyst-agent/graph/tool"
)

// TavilyEndpoint is the Tavily search API.
const TavilyEndpoint = "https://api.tavily.com/search"

// ErrMissingTavilyKey is returned when web search runs without an API key.
var ErrMissingTavilyKey = errors.New("TAVILY_API_KEY is not configured")

// WebRetriever searches the web through Tavily.
type WebRetriever struct {
	APIKey     string
	MaxResults int
	Endpoint   string
	HTTP       *tool.HTTPClient
}

// NewWebRetriever returns a retriever with at most maxResults hits per
// query (3 when maxResults <= 0).
func NewWebRetriever(apiKey string, maxResults int, client *tool.HTTPClient) *WebRetriever {
	if maxResults <= 0 {
		maxResults = 3
	}
	if client == nil {
		client = tool.NewHTTPClient()
	}
	return &WebRetriever{APIKey: apiKey, MaxResults: maxResults, Endpoint: TavilyEndpoint, HTTP: client}
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search returns one document per result with the page url in metadata.
func (w *WebRetriever) Search(ctx context.Context, query string) ([]Document, error) {
	if w.APIKey == "" {
		return nil, ErrMissingTavilyKey
	}
	var resp tavilyResponse
	err := w.HTTP.PostJSON(ctx, w.Endpoint, tavilyRequest{
		APIKey:      w.APIKey,
		Query:       query,
		MaxResults:  w.MaxResults,
		SearchDepth: "advanced",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	docs := make([]Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(docs) == w.MaxResults {
			break
		}
		docs = append(docs, Document{
			PageContent: r.Content,
			Metadata:    map[string]any{"url": r.URL, "title": r.Title, "score": r.Score},
		})
	}
	return docs, nil
}
