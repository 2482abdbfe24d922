package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/retrieval"
)

const (
	maxNewsItems       = 20
	newsScoreThreshold = 0.5
	newsTimeLayout     = "2006-01-02 15:04:05"
)

// NewsItem is a categorised headline.
type NewsItem struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Publisher string `json:"publisher"`
	Link      string `json:"link"`
	Published string `json:"published"`
	Category  string `json:"category"`
}

// newsCategories is ordered; on equal scores the earlier category wins.
var newsCategories = []struct {
	name     string
	keywords []string
}{
	{"earnings", []string{"earnings", "revenue", "profit", "loss", "eps", "quarter", "financial results", "guidance", "forecast", "outlook"}},
	{"product", []string{"launch", "product", "release", "announced", "unveils", "innovation", "development", "patent", "research"}},
	{"management", []string{"ceo", "executive", "management", "appointed", "resigned", "board", "director", "leadership", "strategy"}},
	{"market", []string{"market", "stock", "shares", "trading", "investors", "valuation", "analyst", "rating", "upgrade", "downgrade"}},
	{"regulatory", []string{"sec", "regulation", "compliance", "legal", "lawsuit", "investigation", "settlement", "fine", "approval"}},
	{"partnership", []string{"partnership", "collaboration", "deal", "agreement", "merger", "acquisition", "joint venture", "alliance"}},
	{"industry", []string{"industry", "sector", "competition", "market share", "trend", "disruption", "growth", "decline"}},
	{"financial", []string{"dividend", "debt", "financing", "investment", "acquisition", "restructuring", "cost", "expense", "capital"}},
	{"risk", []string{"risk", "warning", "concern", "issue", "problem", "challenge", "threat", "uncertainty", "volatility"}},
	{"technology", []string{"technology", "digital", "software", "platform", "cloud", "ai", "automation", "cybersecurity", "data"}},
}

// CategorizeNews scores each category by keyword occurrences (substring
// counts) in title and summary and returns the best one, or "general".
func CategorizeNews(title, summary string) string {
	text := strings.ToLower(title + " " + summary)
	best, bestScore := "general", 0
	for _, c := range newsCategories {
		score := 0
		for _, kw := range c.keywords {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			best, bestScore = c.name, score
		}
	}
	return best
}

func systemNews(title string, now time.Time) []NewsItem {
	return []NewsItem{{
		Title:     title,
		Publisher: "System",
		Link:      "#",
		Published: now.Format(newsTimeLayout),
		Category:  "system",
	}}
}

// GetMarketNews returns up to 20 recent categorised headlines for symbol.
// It always returns at least one item: a system notice when there is no
// news or the download fails.
func (r *Retriever) GetMarketNews(ctx context.Context, symbol string) []NewsItem {
	raw, err := r.data.News(ctx, strings.ToUpper(strings.TrimSpace(symbol)), maxNewsItems)
	if err != nil {
		r.logger.Warn("news download failed", zap.String("symbol", symbol), zap.Error(err))
		return systemNews("Unable to fetch news", r.now())
	}

	items := make([]NewsItem, 0, len(raw))
	for _, n := range raw {
		if len(items) == maxNewsItems {
			break
		}
		if strings.TrimSpace(n.Title) == "" {
			continue
		}
		published := n.Published
		if published.IsZero() {
			published = r.now()
		}
		publisher := n.Publisher
		if publisher == "" {
			publisher = "Unknown"
		}
		link := n.Link
		if link == "" {
			link = "#"
		}
		items = append(items, NewsItem{
			Title:     n.Title,
			Summary:   n.Summary,
			Publisher: publisher,
			Link:      link,
			Published: published.Format(newsTimeLayout),
			Category:  CategorizeNews(n.Title, n.Summary),
		})
	}
	if len(items) == 0 {
		return systemNews("No recent news available", r.now())
	}
	return items
}

func (n NewsItem) document() retrieval.Document {
	return retrieval.Document{
		PageContent: n.Title + "\n" + n.Summary,
		Metadata: map[string]any{
			"title":     n.Title,
			"summary":   n.Summary,
			"publisher": n.Publisher,
			"link":      n.Link,
			"published": n.Published,
			"category":  n.Category,
		},
	}
}

func newsFromDocument(d retrieval.Document) NewsItem {
	return NewsItem{
		Title:     d.Meta("title"),
		Summary:   d.Meta("summary"),
		Publisher: d.Meta("publisher"),
		Link:      d.Meta("link"),
		Published: d.Meta("published"),
		Category:  d.Meta("category"),
	}
}

// IndexNews embeds items into the news index. System notices are skipped.
// It is a no-op when no index is configured.
func (r *Retriever) IndexNews(ctx context.Context, items []NewsItem) error {
	if r.news == nil {
		return nil
	}
	docs := make([]retrieval.Document, 0, len(items))
	for _, n := range items {
		if n.Category != "system" {
			docs = append(docs, n.document())
		}
	}
	if _, err := r.news.Index(ctx, docs); err != nil {
		return fmt.Errorf("index news: %w", err)
	}
	return nil
}

// SearchRelatedNews returns up to k indexed headlines with similarity of at
// least 0.5 to query. Failures are logged and yield no results.
func (r *Retriever) SearchRelatedNews(ctx context.Context, query string, k int) []NewsItem {
	if k <= 0 {
		k = 5
	}
	hits := r.searchNews(ctx, query, k, nil)
	out := make([]NewsItem, 0, len(hits))
	for _, h := range hits {
		if h.Score >= newsScoreThreshold {
			out = append(out, newsFromDocument(h.Document))
		}
	}
	return out
}

// NewsByCategory returns up to 20 indexed headlines of category.
func (r *Retriever) NewsByCategory(ctx context.Context, category string) []NewsItem {
	query := fmt.Sprintf("News articles about %s related topics", category)
	hits := r.searchNews(ctx, query, maxNewsItems, retrieval.Filter{"category": category})
	out := make([]NewsItem, 0, len(hits))
	for _, h := range hits {
		out = append(out, newsFromDocument(h.Document))
	}
	return out
}

func (r *Retriever) searchNews(ctx context.Context, query string, k int, filter retrieval.Filter) []retrieval.ScoredDocument {
	if r.news == nil {
		return nil
	}
	hits, err := r.news.SearchWith(ctx, query, retrieval.SearchKwargs{K: k, Filter: filter})
	if err != nil {
		r.logger.Warn("news search failed", zap.Error(err))
		return nil
	}
	return hits
}
