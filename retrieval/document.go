// Package retrieval provides documents, web and Wikipedia search, text
// embeddings, vector stores and the retrievers built on them.
package retrieval

import (
	"fmt"
	"strings"
)

// Document is a piece of retrieved text with its metadata (url, source,
// title, ...).
type Document struct {
	ID          string         `json:"id,omitempty"`
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Meta returns the metadata value for key rendered as a string, or "".
func (d Document) Meta(key string) string {
	v, ok := d.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// FormatDoc renders a document for a prompt. Web results carry their url as
// href; other documents (Wikipedia, papers) carry source and page.
func FormatDoc(d Document) string {
	var header string
	if url := d.Meta("url"); url != "" {
		header = fmt.Sprintf(`<Document href="%s"/>`, url)
	} else {
		header = fmt.Sprintf(`<Document source="%s" page="%s"/>`, d.Meta("source"), d.Meta("page"))
	}
	return header + "\n" + d.PageContent + "\n</Document>"
}

// FormatDocs renders documents separated by horizontal rules.
func FormatDocs(docs []Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = FormatDoc(d)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
