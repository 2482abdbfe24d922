// Package google adapts Gemini models to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/analyst-agent/graph/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// The genai client holds a connection; call Close when done.
type ChatModel struct {
	modelName string
	client    *genai.Client
	generate  generateFunc
}

type generateFunc func(ctx context.Context, req request) (*genai.GenerateContentResponse, error)

type request struct {
	system  *genai.Content
	history []*genai.Content
	tools   []*genai.Tool
	parts   []genai.Part
}

// NewChatModel connects to the Gemini API.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google: %w", model.ErrMissingAPIKey)
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	m := &ChatModel{modelName: modelName, client: client}
	m.generate = m.sdkGenerate
	return m, nil
}

// Name returns the Gemini model name.
func (m *ChatModel) Name() string { return m.modelName }

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	req, err := buildRequest(messages, tools)
	if err != nil {
		return model.ChatOut{}, err
	}
	resp, err := m.generate(ctx, req)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}
	return convertResponse(resp)
}

func (m *ChatModel) sdkGenerate(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	gm := m.client.GenerativeModel(m.modelName)
	gm.SystemInstruction = req.system
	gm.Tools = req.tools

	session := gm.StartChat()
	session.History = req.history
	return session.SendMessage(ctx, req.parts...)
}

func buildRequest(messages []model.Message, tools []model.ToolSpec) (request, error) {
	var req request
	var system []string
	var contents []*genai.Content

	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		c := convertMessage(msg)
		if len(c.Parts) == 0 {
			continue
		}
		contents = append(contents, c)
	}
	if len(contents) == 0 {
		return req, errors.New("google: no user content to send")
	}

	if len(system) > 0 {
		req.system = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	req.history = contents[:len(contents)-1]
	req.parts = contents[len(contents)-1].Parts
	if len(tools) > 0 {
		req.tools = convertTools(tools)
	}
	return req, nil
}

func convertMessage(msg model.Message) *genai.Content {
	c := &genai.Content{Role: "user"}
	switch msg.Role {
	case model.RoleAssistant:
		c.Role = "model"
		if msg.Content != "" {
			c.Parts = append(c.Parts, genai.Text(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			c.Parts = append(c.Parts, genai.FunctionCall{Name: call.Name, Args: call.Input})
		}
	case model.RoleTool:
		c.Parts = append(c.Parts, genai.FunctionResponse{
			Name:     msg.Name,
			Response: map[string]any{"content": msg.Content},
		})
	default:
		if msg.Content != "" {
			c.Parts = append(c.Parts, genai.Text(msg.Content))
		}
	}
	return c
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertSchema(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema maps a JSON Schema map to genai.Schema, recursing into
// object properties and array items.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}
	if typeStr, ok := schema["type"].(string); ok {
		result.Type = convertTypeString(typeStr)
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			if propMap, ok := val.(map[string]any); ok {
				result.Properties[key] = convertSchema(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = convertSchema(items)
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []any:
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// SafetyFilterError reports a response blocked by Gemini safety settings.
type SafetyFilterError struct {
	Reason string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.Reason
}

func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	var out model.ChatOut
	if resp == nil {
		return out, errors.New("google: empty response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return out, &SafetyFilterError{Reason: resp.PromptFeedback.BlockReason.String()}
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	var text []string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text = append(text, string(p))
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	out.Text = strings.Join(text, "\n")
	return out, nil
}
