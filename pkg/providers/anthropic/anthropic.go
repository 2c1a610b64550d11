// Package anthropic provides a Completer for the Anthropic Messages API.
package anthropic

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

// DefaultBaseURL is the public Anthropic API root.
const DefaultBaseURL = "https://api.anthropic.com"

// defaultMaxTokens is sent when none is configured; the API requires one.
const defaultMaxTokens = 4096

const messagesPath = "/v1/messages"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Messages API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. baseURL has no version segment, for example
// DefaultBaseURL.
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = strings.TrimRight(baseURL, "/")
	a.Auth = modeladapter.Auth{Key: apiKey, Header: "x-api-key"}
	a.Name = model
	a.MaxTokens = defaultMaxTokens
	a.Headers = map[string]string{"anthropic-version": "2023-06-01"}

	return a
}

// Complete sends the history to the API and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, h *conversation.History, tools []registry.Descriptor) (conversation.Message, error) {
	var resp apiResponse
	if err := a.PostJSON(ctx, messagesPath, a.buildRequest(h, tools), &resp); err != nil {
		return conversation.Message{}, fmt.Errorf("anthropic: %w", err)
	}

	a.Usage.Add(modeladapter.TokenCount{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})

	return parseResponse(resp)
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	Tools       []apiToolDef `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type apiToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// --- response types ---

type apiResponse struct {
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
	Usage      apiUsage     `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(h *conversation.History, tools []registry.Descriptor) apiRequest {
	req := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
		System:    h.SystemPrompt(),
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = defaultMaxTokens
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
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	for _, m := range h.Messages() {
		if m.Role == conversation.RoleSystem {
			continue
		}
		req.Messages = appendMessage(req.Messages, m)
	}

	return req
}

// appendMessage converts m into content blocks. Consecutive blocks with the
// same role share one API message; tool results travel in user messages.
func appendMessage(msgs []apiMessage, m conversation.Message) []apiMessage {
	msgRole := "user"
	if m.Role == conversation.RoleAssistant {
		msgRole = "assistant"
	}

	for _, p := range m.Parts {
		block, ok := partToBlock(p)
		if !ok {
			continue
		}

		if n := len(msgs); n > 0 && msgs[n-1].Role == msgRole {
			msgs[n-1].Content = append(msgs[n-1].Content, block)
			continue
		}

		msgs = append(msgs, apiMessage{Role: msgRole, Content: []apiContent{block}})
	}

	return msgs
}

func partToBlock(p conversation.Part) (apiContent, bool) {
	switch v := p.(type) {
	case conversation.Text:
		if v.Text == "" {
			return apiContent{}, false
		}
		return apiContent{Type: "text", Text: v.Text}, true
	case conversation.ToolCall:
		input := json.RawMessage(v.Arguments)
		if len(input) == 0 || !json.Valid(input) {
			input = json.RawMessage(`{}`)
		}
		return apiContent{Type: "tool_use", ID: v.ID, Name: v.Name, Input: input}, true
	case conversation.ToolResult:
		return apiContent{Type: "tool_result", ToolUseID: v.ToolCallID, Content: v.Content, IsError: v.IsError}, true
	default:
		return apiContent{}, false
	}
}

func parseResponse(resp apiResponse) (conversation.Message, error) {
	var parts []conversation.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, conversation.Text{Text: block.Text})
		case "tool_use":
			if block.Name == "" {
				return conversation.Message{}, fault.Newf(fault.ErrModelResponse, "anthropic", "tool_use block %q has no name", block.ID)
			}
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			parts = append(parts, conversation.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return conversation.NewMessage(conversation.RoleAssistant, parts...), nil
}
