package retrieval

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/analyst-agent/graph/tool"
)

// ArxivEndpoint is the arXiv export API.
const ArxivEndpoint = "https://export.arxiv.org/api/query"

// Paper is one arXiv search result.
type Paper struct {
	EntryID         string    `json:"entry_id"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	Summary         string    `json:"summary"`
	Published       time.Time `json:"published"`
	PDFURL          string    `json:"pdf_url"`
	PrimaryCategory string    `json:"primary_category"`
	Categories      []string  `json:"categories"`
}

// Document renders the paper summary as an indexable document.
func (p Paper) Document() Document {
	authors := strings.Join(p.Authors, ", ")
	published := p.Published.Format("2006-01-02 15:04:05-07:00")
	return Document{
		ID: p.EntryID,
		PageContent: fmt.Sprintf("Title: %s\nAuthors: %s\nPublished: %s\nSummary: %s",
			p.Title, authors, published, p.Summary),
		Metadata: map[string]any{
			"Title":            p.Title,
			"Authors":          authors,
			"Published":        published,
			"entry_id":         p.EntryID,
			"pdf_url":          p.PDFURL,
			"primary_category": p.PrimaryCategory,
		},
	}
}

// ArxivClient searches arXiv. The API asks for at most one request every
// three seconds, which the default rate limit honours.
type ArxivClient struct {
	Endpoint string
	HTTP     *tool.HTTPClient
}

// NewArxivClient returns a client; a nil http client gets a rate-limited default.
func NewArxivClient(client *tool.HTTPClient) *ArxivClient {
	if client == nil {
		client = tool.NewHTTPClient(tool.WithRateLimit(1.0/3, 1))
	}
	return &ArxivClient{Endpoint: ArxivEndpoint, HTTP: client}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
		Type  string `xml:"type,attr"`
	} `xml:"link"`
	PrimaryCategory struct {
		Term string `xml:"term,attr"`
	} `xml:"http://arxiv.org/schemas/atom primary_category"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// Search returns up to maxResults papers for query ordered by relevance.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	body, err := c.HTTP.Get(ctx, c.Endpoint, url.Values{
		"search_query": {query},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(maxResults)},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	})
	if err != nil {
		return nil, fmt.Errorf("arxiv search: %w", err)
	}
	return parseArxivFeed(body)
}

func parseArxivFeed(body []byte) ([]Paper, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse arxiv feed: %w", err)
	}
	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		// Error feeds carry a single entry whose id is the API error URL.
		if strings.Contains(e.ID, "arxiv.org/api/errors") {
			return nil, fmt.Errorf("arxiv error: %s", collapse(e.Summary))
		}
		p := Paper{
			EntryID:         strings.TrimSpace(e.ID),
			Title:           collapse(e.Title),
			Summary:         collapse(e.Summary),
			PrimaryCategory: e.PrimaryCategory.Term,
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
			p.Published = t
		}
		for _, a := range e.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
		}
		for _, l := range e.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				p.PDFURL = l.Href
			}
		}
		for _, cat := range e.Categories {
			p.Categories = append(p.Categories, cat.Term)
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// collapse joins the hard-wrapped lines of Atom text fields.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
