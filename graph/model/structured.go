package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoStructuredOutput is returned when a response contains neither a
// matching tool call nor parseable JSON.
var ErrNoStructuredOutput = errors.New("model returned no structured output")

// Structured asks the model for output shaped by spec.Schema and decodes it
// into T.
//
// The schema is offered as a tool; the first call to spec.Name is decoded.
// Models that answer in text instead are parsed leniently: code fences and
// prose around the JSON object are ignored.
//
//	type SearchQuery struct {
//	    SearchQuery string `json:"search_query"`
//	}
//	q, err := model.Structured[SearchQuery](ctx, llm, msgs, searchQuerySpec)
func Structured[T any](ctx context.Context, m ChatModel, messages []Message, spec ToolSpec) (T, error) {
	var out T

	schema, err := json.Marshal(spec.Schema)
	if err != nil {
		return out, fmt.Errorf("invalid schema for %s: %w", spec.Name, err)
	}
	msgs := make([]Message, 0, len(messages)+1)
	msgs = append(msgs, messages...)
	msgs = append(msgs, System(fmt.Sprintf(
		"Respond by calling the %s tool. If you cannot call tools, reply with only a JSON object matching this schema:\n%s",
		spec.Name, schema,
	)))

	resp, err := m.Chat(ctx, msgs, []ToolSpec{spec})
	if err != nil {
		return out, err
	}

	for _, call := range resp.ToolCalls {
		if call.Name != spec.Name {
			continue
		}
		data, err := json.Marshal(call.Input)
		if err != nil {
			return out, fmt.Errorf("failed to encode %s arguments: %w", spec.Name, err)
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("failed to decode %s arguments: %w", spec.Name, err)
		}
		return out, nil
	}

	raw := ExtractJSON(resp.Text)
	if raw == "" {
		return out, fmt.Errorf("%w for %s", ErrNoStructuredOutput, spec.Name)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("failed to decode %s output: %w", spec.Name, err)
	}
	return out, nil
}

// ExtractJSON returns the outermost JSON object or array in text, or "" if
// there is none. Markdown code fences are ignored.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end < start {
		return ""
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return ""
	}
	return candidate
}

// ObjectSchema builds a JSON Schema object from property schemas. All
// listed properties are required.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// StringProp is a string property schema with a description.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// NumberProp is a number property schema with a description.
func NumberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// ArrayProp is an array property schema whose items follow items.
func ArrayProp(description string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": description, "items": items}
}
