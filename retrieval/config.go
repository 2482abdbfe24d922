package retrieval

import (
	"fmt"
	"io"
	"strings"
)

// Retriever providers.
const (
	ProviderSQLite   = "sqlite"
	ProviderMemory   = "memory"
	ProviderWeaviate = "weaviate"
)

// Providers recognised by configuration but not built into this binary.
var unsupportedProviders = []string{"elastic", "elastic-local", "pinecone", "mongodb"}

// Config is the retrieval configuration shared by every graph.
type Config struct {
	EmbeddingModel    string       `yaml:"embedding_model"`
	RetrieverProvider string       `yaml:"retriever_provider"`
	SearchKwargs      SearchKwargs `yaml:"search_kwargs"`
}

// DefaultConfig returns an in-memory retriever embedding with OpenAI.
func DefaultConfig() Config {
	return Config{
		EmbeddingModel:    DefaultEmbeddingModel,
		RetrieverProvider: ProviderMemory,
	}
}

// Deps carries the connection details vector stores need.
type Deps struct {
	SQLitePath string
	Collection string
	Weaviate   WeaviateConfig
}

// NewVectorStore opens the store named by provider.
func NewVectorStore(provider string, deps Deps) (VectorStore, error) {
	switch provider {
	case ProviderMemory, "":
		return NewMemoryVectorStore(), nil
	case ProviderSQLite:
		if deps.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite retriever requires a database path")
		}
		return NewSQLiteVectorStore(deps.SQLitePath, deps.Collection)
	case ProviderWeaviate:
		return NewWeaviateStore(deps.Weaviate)
	}
	for _, p := range unsupportedProviders {
		if provider == p {
			return nil, fmt.Errorf("retriever provider %q: %w", provider, ErrUnsupportedProvider)
		}
	}
	return nil, fmt.Errorf("unrecognized retriever_provider in configuration. Expected one of: %s\nGot: %s",
		strings.Join(append([]string{ProviderSQLite, ProviderMemory, ProviderWeaviate}, unsupportedProviders...), ", "),
		provider)
}

// MakeRetriever builds the retriever described by cfg. Close the result to
// release the underlying store.
func MakeRetriever(cfg Config, embedder Embedder, deps Deps) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retriever requires an embedder")
	}
	vs, err := NewVectorStore(cfg.RetrieverProvider, deps)
	if err != nil {
		return nil, err
	}
	return NewRetriever(vs, embedder, cfg.SearchKwargs), nil
}

// Close releases the store when it holds resources.
func (r *Retriever) Close() error {
	if c, ok := r.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
