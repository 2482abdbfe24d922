package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/analyst-agent/graph/model/openai"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = "openai/text-embedding-3-small"

// ErrUnsupportedProvider is wrapped by errors for recognised but unavailable
// embedding or vector store providers.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// Embedder turns texts into vectors. Implementations return one vector per
// input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// EmbedQuery embeds a single text.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}

// MakeTextEncoder returns the embedder named by spec ("provider/model").
// Only openai is available; cohere is recognised but unsupported.
func MakeTextEncoder(spec, apiKey string) (Embedder, error) {
	if spec == "" {
		spec = DefaultEmbeddingModel
	}
	provider, name, ok := strings.Cut(spec, "/")
	if !ok {
		return nil, fmt.Errorf("invalid embedding model %q: expected provider/model", spec)
	}
	switch strings.ToLower(provider) {
	case "openai":
		return openai.NewEmbedder(apiKey, name)
	case "cohere":
		return nil, fmt.Errorf("embedding provider %q: %w", provider, ErrUnsupportedProvider)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
