package model

import (
	"context"
	"fmt"
	"strings"
)

// Loader resolves a "provider/model" specification (for example
// "openai/gpt-4o-mini") to a ChatModel.
type Loader interface {
	Load(spec string) (ChatModel, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(spec string) (ChatModel, error)

// Load implements Loader.
func (f LoaderFunc) Load(spec string) (ChatModel, error) { return f(spec) }

// StaticLoader returns the same model for every specification. Tests use it
// to inject a MockChatModel into a graph.
func StaticLoader(m ChatModel) Loader {
	return LoaderFunc(func(string) (ChatModel, error) { return m, nil })
}

// SplitSpec splits "provider/model". A specification without a provider
// defaults to openai.
func SplitSpec(spec string) (provider, name string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("empty model specification")
	}
	provider, name, found := strings.Cut(spec, "/")
	if !found {
		return "openai", spec, nil
	}
	if provider == "" || name == "" {
		return "", "", fmt.Errorf("invalid model specification %q, expected provider/model", spec)
	}
	return strings.ToLower(provider), name, nil
}

// UsageRecorder receives token usage reported by provider adapters.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, model string, inputTokens, outputTokens int)
}

// WithUsage wraps m so that every successful call reports its usage to rec
// under the given model name.
func WithUsage(m ChatModel, name string, rec UsageRecorder) ChatModel {
	if rec == nil {
		return m
	}
	return &usageModel{ChatModel: m, name: name, rec: rec}
}

type usageModel struct {
	ChatModel
	name string
	rec  UsageRecorder
}

func (u *usageModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	out, err := u.ChatModel.Chat(ctx, messages, tools)
	if err == nil {
		u.rec.RecordUsage(ctx, u.name, out.Usage.InputTokens, out.Usage.OutputTokens)
	}
	return out, err
}

// Unwrap returns the wrapped model.
func (u *usageModel) Unwrap() ChatModel { return u.ChatModel }
