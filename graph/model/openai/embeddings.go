package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/analyst-agent/graph/model"
)

// DefaultEmbeddingModel is used when no embedding model is given.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder turns text into vectors with the OpenAI embeddings endpoint.
type Embedder struct {
	modelName string
	client    embeddingClient
}

type embeddingClient interface {
	embed(ctx context.Context, params openai.EmbeddingNewParams) (*openai.CreateEmbeddingResponse, error)
}

// NewEmbedder creates an embedder for modelName.
func NewEmbedder(apiKey, modelName string, opts ...option.RequestOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", model.ErrMissingAPIKey)
	}
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Embedder{modelName: modelName, client: &sdkEmbeddingClient{client: &client}}, nil
}

// Name returns the embedding model name.
func (e *Embedder) Name() string { return e.modelName }

// Embed returns one vector per input, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.embed(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.modelName),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", idx)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[idx] = vec
	}
	return vectors, nil
}

type sdkEmbeddingClient struct {
	client *openai.Client
}

func (c *sdkEmbeddingClient) embed(ctx context.Context, params openai.EmbeddingNewParams) (*openai.CreateEmbeddingResponse, error) {
	return c.client.Embeddings.New(ctx, params)
}
