// Package openai provides a Completer for OpenAI-compatible Chat Completions
// APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/conversation"
	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/registry"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

const completionsPath = "/chat/completions"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. baseURL includes the version segment, for example
// DefaultBaseURL, and has no trailing slash.
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = strings.TrimRight(baseURL, "/")
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model

	return a
}

// Complete sends the history to the API and returns the first choice.
func (a *Adapter) Complete(ctx context.Context, h *conversation.History, tools []registry.Descriptor) (conversation.Message, error) {
	var resp apiResponse
	if err := a.PostJSON(ctx, completionsPath, a.buildRequest(h, tools), &resp); err != nil {
		return conversation.Message{}, fmt.Errorf("openai: %w", err)
	}

	a.Usage.Add(modeladapter.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})

	if len(resp.Choices) == 0 {
		return conversation.Message{}, fault.Newf(fault.ErrModelResponse, "openai", "empty choices in response")
	}

	return parseChoice(resp.Choices[0])
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Tools       []apiToolDef `json:"tools,omitempty"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiToolFunction `json:"function"`
}

type apiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiToolDef struct {
	Type     string         `json:"type"`
	Function apiToolDefFunc `json:"function"`
}

type apiToolDefFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(h *conversation.History, tools []registry.Descriptor) apiRequest {
	req := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		req.Tools = append(req.Tools, apiToolDef{
			Type: "function",
			Function: apiToolDefFunc{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}

	for _, m := range h.Messages() {
		req.Messages = appendMessage(req.Messages, m)
	}

	return req
}

func appendMessage(msgs []apiMessage, m conversation.Message) []apiMessage {
	switch m.Role {
	case conversation.RoleSystem, conversation.RoleUser:
		text := m.TextContent()
		return append(msgs, apiMessage{Role: string(m.Role), Content: &text})

	case conversation.RoleAssistant:
		msg := apiMessage{Role: "assistant"}
		if text := m.TextContent(); text != "" {
			msg.Content = &text
		}
		for _, tc := range m.ToolCalls() {
			msg.ToolCalls = append(msg.ToolCalls, apiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: apiToolFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		return append(msgs, msg)

	case conversation.RoleTool:
		// One API message per result.
		for _, tr := range m.ToolResults() {
			content := tr.Content
			msgs = append(msgs, apiMessage{
				Role:       "tool",
				Content:    &content,
				Name:       tr.Name,
				ToolCallID: tr.ToolCallID,
			})
		}
	}

	return msgs
}

func parseChoice(choice apiChoice) (conversation.Message, error) {
	var parts []conversation.Part

	if choice.Message.Content != nil && *choice.Message.Content != "" {
		parts = append(parts, conversation.Text{Text: *choice.Message.Content})
	}

	for i, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == "" {
			return conversation.Message{}, fault.Newf(fault.ErrModelResponse, "openai", "tool call %d has no function name", i)
		}

		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}

		parts = append(parts, conversation.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return conversation.NewMessage(conversation.RoleAssistant, parts...), nil
}
