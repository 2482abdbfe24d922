package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/analyst-agent/graph/tool"
)

const (
	// WikipediaEndpoint is the English MediaWiki API.
	WikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

	// maxWikiChars truncates page content, like the loader it replaces.
	maxWikiChars = 4000
)

// WikipediaRetriever loads full Wikipedia pages matching a query.
type WikipediaRetriever struct {
	MaxDocs  int
	Endpoint string
	HTTP     *tool.HTTPClient
}

// NewWikipediaRetriever returns a retriever loading at most maxDocs pages
// (2 when maxDocs <= 0).
func NewWikipediaRetriever(maxDocs int, client *tool.HTTPClient) *WikipediaRetriever {
	if maxDocs <= 0 {
		maxDocs = 2
	}
	if client == nil {
		client = tool.NewHTTPClient()
	}
	return &WikipediaRetriever{MaxDocs: maxDocs, Endpoint: WikipediaEndpoint, HTTP: client}
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title  string `json:"title"`
			PageID int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID  int    `json:"pageid"`
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Search finds pages for query and returns their plain-text content.
// Metadata carries title, summary (first paragraph) and source (page URL).
func (w *WikipediaRetriever) Search(ctx context.Context, query string) ([]Document, error) {
	var found wikiSearchResponse
	err := w.HTTP.GetJSON(ctx, w.Endpoint, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(w.MaxDocs)},
		"format":   {"json"},
	}, &found)
	if err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}
	if len(found.Query.Search) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(found.Query.Search))
	rank := map[int]int{}
	for i, hit := range found.Query.Search {
		if i == w.MaxDocs {
			break
		}
		ids = append(ids, strconv.Itoa(hit.PageID))
		rank[hit.PageID] = i
	}

	var pages wikiExtractResponse
	err = w.HTTP.GetJSON(ctx, w.Endpoint, url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"explaintext": {"1"},
		"pageids":     {strings.Join(ids, "|")},
		"format":      {"json"},
	}, &pages)
	if err != nil {
		return nil, fmt.Errorf("wikipedia extracts: %w", err)
	}

	docs := make([]Document, 0, len(pages.Query.Pages))
	for _, p := range pages.Query.Pages {
		if p.Extract == "" {
			continue
		}
		content := p.Extract
		if len(content) > maxWikiChars {
			content = content[:maxWikiChars]
		}
		docs = append(docs, Document{
			PageContent: content,
			Metadata: map[string]any{
				"title":   p.Title,
				"summary": firstParagraph(p.Extract),
				"source":  "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(p.Title, " ", "_"),
				"pageid":  p.PageID,
			},
		})
	}
	// Map iteration is random; restore search rank.
	sort.SliceStable(docs, func(i, j int) bool {
		return rank[docs[i].Metadata["pageid"].(int)] < rank[docs[j].Metadata["pageid"].(int)]
	})
	return docs, nil
}

func firstParagraph(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
