// Package provider resolves "provider/model" specifications such as
// "openai/gpt-4o-mini" or "anthropic/claude-3-5-haiku-latest" to chat models.
package provider

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/model/anthropic"
	"github.com/dshills/analyst-agent/graph/model/google"
	"github.com/dshills/analyst-agent/graph/model/openai"
)

// Keys holds provider credentials.
type Keys struct {
	OpenAI    string
	Anthropic string
	Google    string
}

// Factory builds a model for one provider.
type Factory func(ctx context.Context, name string) (model.ChatModel, error)

// Registry implements model.Loader. Models are created once per
// specification and shared; all adapters are safe for concurrent use.
type Registry struct {
	factories map[string]Factory
	recorder  model.UsageRecorder

	mu     sync.Mutex
	models map[string]model.ChatModel
}

// NewRegistry registers the openai, anthropic and google providers using
// keys. A provider whose key is empty fails on first use, not here.
func NewRegistry(keys Keys, recorder model.UsageRecorder) *Registry {
	r := &Registry{
		factories: map[string]Factory{},
		recorder:  recorder,
		models:    map[string]model.ChatModel{},
	}
	r.Register("openai", func(_ context.Context, name string) (model.ChatModel, error) {
		return openai.NewChatModel(keys.OpenAI, name)
	})
	r.Register("anthropic", func(_ context.Context, name string) (model.ChatModel, error) {
		return anthropic.NewChatModel(keys.Anthropic, name)
	})
	r.Register("google", func(ctx context.Context, name string) (model.ChatModel, error) {
		return google.NewChatModel(ctx, keys.Google, name)
	})
	return r
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(provider string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = f
}

// Load implements model.Loader.
func (r *Registry) Load(spec string) (model.ChatModel, error) {
	provider, name, err := model.SplitSpec(spec)
	if err != nil {
		return nil, err
	}
	key := provider + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[key]; ok {
		return m, nil
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported model provider %q", provider)
	}
	m, err := factory(context.Background(), name)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", key, err)
	}
	m = model.WithUsage(m, key, r.recorder)
	r.models[key] = m
	return m, nil
}

// Close releases models that hold connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for key, m := range r.models {
		if c, ok := unwrap(m).(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(r.models, key)
	}
	return firstErr
}

func unwrap(m model.ChatModel) model.ChatModel {
	if u, ok := m.(interface{ Unwrap() model.ChatModel }); ok {
		return u.Unwrap()
	}
	return m
}
