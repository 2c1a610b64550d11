// Package gemini provides a Completer for the Google Gemini generateContent
// API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/conversation"
	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/registry"
	"github.com/google/uuid"
)

// DefaultBaseURL is the public Gemini API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Gemini API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. baseURL has no version segment, for example
// DefaultBaseURL.
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = strings.TrimRight(baseURL, "/")
	a.Auth = modeladapter.Auth{Key: apiKey, Header: "x-goog-api-key"}
	a.Name = model

	return a
}

// Complete sends the history to the API and returns the first candidate.
func (a *Adapter) Complete(ctx context.Context, h *conversation.History, tools []registry.Descriptor) (conversation.Message, error) {
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", a.Name)

	var resp apiResponse
	if err := a.PostJSON(ctx, path, a.buildRequest(h, tools), &resp); err != nil {
		return conversation.Message{}, fmt.Errorf("gemini: %w", err)
	}

	a.Usage.Add(modeladapter.TokenCount{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	})

	if len(resp.Candidates) == 0 {
		return conversation.Message{}, fault.Newf(fault.ErrModelResponse, "gemini", "empty candidates in response")
	}

	return parseCandidate(resp.Candidates[0])
}

// --- request types ---

type apiRequest struct {
	Contents          []apiContent     `json:"contents"`
	SystemInstruction *apiContent      `json:"systemInstruction,omitempty"`
	Tools             []apiToolSet     `json:"tools,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text             string           `json:"text,omitempty"`
	FunctionCall     *apiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *apiFunctionResp `json:"functionResponse,omitempty"`
}

type apiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type apiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type apiToolSet struct {
	FunctionDeclarations []apiFuncDecl `json:"functionDeclarations"`
}

type apiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// --- response types ---

type apiResponse struct {
	Candidates    []apiCandidate `json:"candidates"`
	UsageMetadata apiUsageMeta   `json:"usageMetadata"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiUsageMeta struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(h *conversation.History, tools []registry.Descriptor) apiRequest {
	req := apiRequest{
		GenerationConfig: generationConfig{MaxOutputTokens: a.MaxTokens},
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.GenerationConfig.Temperature = &t
	}

	if len(tools) > 0 {
		decls := make([]apiFuncDecl, len(tools))
		for i, t := range tools {
			schema := t.InputSchema
			if len(schema) == 0 {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			decls[i] = apiFuncDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  sanitizeSchema(schema),
			}
		}
		req.Tools = []apiToolSet{{FunctionDeclarations: decls}}
	}

	if sp := h.SystemPrompt(); sp != "" {
		req.SystemInstruction = &apiContent{Parts: []apiPart{{Text: sp}}}
	}

	for _, m := range h.Messages() {
		if m.Role == conversation.RoleSystem {
			continue
		}
		req.Contents = appendContent(req.Contents, m)
	}

	return req
}

// appendContent converts m into parts. Gemini requires alternating roles, so
// consecutive parts with the same role are merged.
func appendContent(contents []apiContent, m conversation.Message) []apiContent {
	apiRole := "user"
	if m.Role == conversation.RoleAssistant {
		apiRole = "model"
	}

	for _, p := range m.Parts {
		part, ok := toAPIPart(p)
		if !ok {
			continue
		}

		if n := len(contents); n > 0 && contents[n-1].Role == apiRole {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			continue
		}

		contents = append(contents, apiContent{Role: apiRole, Parts: []apiPart{part}})
	}

	return contents
}

func toAPIPart(p conversation.Part) (apiPart, bool) {
	switch v := p.(type) {
	case conversation.Text:
		if v.Text == "" {
			return apiPart{}, false
		}
		return apiPart{Text: v.Text}, true
	case conversation.ToolCall:
		args := json.RawMessage(v.Arguments)
		if len(args) == 0 || !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		return apiPart{FunctionCall: &apiFunctionCall{Name: v.Name, Args: args}}, true
	case conversation.ToolResult:
		return apiPart{FunctionResponse: &apiFunctionResp{
			Name:     v.Name,
			Response: functionResponse(v),
		}}, true
	default:
		return apiPart{}, false
	}
}

// functionResponse wraps a result as {"result": ...}, or {"error": ...} for
// failed calls. JSON content is embedded as is; anything else as a string.
func functionResponse(tr conversation.ToolResult) json.RawMessage {
	key := "result"
	if tr.IsError {
		key = "error"
	}

	value := json.RawMessage(tr.Content)
	if !json.Valid(value) {
		value, _ = json.Marshal(tr.Content)
	}

	out, _ := json.Marshal(map[string]json.RawMessage{key: value})
	return out
}

// sanitizeSchema drops the JSON Schema keywords Gemini rejects, at every
// nesting level reachable through properties and items.
func sanitizeSchema(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}

	delete(obj, "$schema")
	delete(obj, "additionalProperties")

	if props, ok := obj["properties"]; ok {
		var propMap map[string]json.RawMessage
		if err := json.Unmarshal(props, &propMap); err == nil {
			for k, v := range propMap {
				propMap[k] = sanitizeSchema(v)
			}
			if b, err := json.Marshal(propMap); err == nil {
				obj["properties"] = b
			}
		}
	}

	if items, ok := obj["items"]; ok {
		obj["items"] = sanitizeSchema(items)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return b
}

// parseCandidate converts a candidate into a message. Gemini does not issue
// call ids, so each function call gets a fresh one.
func parseCandidate(cand apiCandidate) (conversation.Message, error) {
	var parts []conversation.Part

	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			if p.FunctionCall.Name == "" {
				return conversation.Message{}, fault.Newf(fault.ErrModelResponse, "gemini", "function call has no name")
			}
			args := string(p.FunctionCall.Args)
			if args == "" {
				args = "{}"
			}
			parts = append(parts, conversation.ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      p.FunctionCall.Name,
				Arguments: args,
			})
		case p.Text != "":
			parts = append(parts, conversation.Text{Text: p.Text})
		}
	}

	return conversation.NewMessage(conversation.RoleAssistant, parts...), nil
}
