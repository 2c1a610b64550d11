package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/relay/pkg/conversation"
	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/providers/anthropic"
	"github.com/germanamz/relay/pkg/tools/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *anthropic.Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return anthropic.New(srv.URL, "test-key", "claude-test")
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	assert.NoError(t, err)

	var req map[string]any
	assert.NoError(t, json.Unmarshal(body, &req))

	return req
}

func TestComplete_SimpleText(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))

		req := readBody(t, r)
		assert.Equal(t, "claude-test", req["model"])
		assert.InDelta(t, 4096, req["max_tokens"], 0)
		assert.Equal(t, "Be terse.", req["system"])
		assert.NotContains(t, req, "tools")

		msgs, _ := req["messages"].([]any)
		if !assert.Len(t, msgs, 1) {
			return
		}
		first, _ := msgs[0].(map[string]any)
		assert.Equal(t, "user", first["role"])

		writeJSON(t, w, map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "Hello!"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	})

	h := conversation.NewHistory(
		conversation.NewText(conversation.RoleSystem, "Be terse."),
		conversation.NewText(conversation.RoleUser, "Hi"),
	)

	reply, err := adapter.Complete(context.Background(), h, nil)
	require.NoError(t, err)

	assert.Equal(t, conversation.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello!", reply.TextContent())

	total := adapter.UsageTracker().Total()
	assert.Equal(t, 12, total.InputTokens)
	assert.Equal(t, 3, total.OutputTokens)
}

func TestComplete_ToolRoundTrip(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		tools, _ := req["tools"].([]any)
		if assert.Len(t, tools, 1) {
			tool, _ := tools[0].(map[string]any)
			assert.Equal(t, "search", tool["name"])
			assert.Equal(t, map[string]any{"type": "object"}, tool["input_schema"])
		}

		msgs, _ := req["messages"].([]any)
		if !assert.Len(t, msgs, 3) {
			return
		}

		assistant, _ := msgs[1].(map[string]any)
		assert.Equal(t, "assistant", assistant["role"])
		blocks, _ := assistant["content"].([]any)
		if assert.Len(t, blocks, 1) {
			block, _ := blocks[0].(map[string]any)
			assert.Equal(t, "tool_use", block["type"])
			assert.Equal(t, "tu_1", block["id"])
			assert.Equal(t, map[string]any{"q": "go"}, block["input"])
		}

		results, _ := msgs[2].(map[string]any)
		assert.Equal(t, "user", results["role"])
		blocks, _ = results["content"].([]any)
		if assert.Len(t, blocks, 2) {
			ok, _ := blocks[0].(map[string]any)
			assert.Equal(t, "tool_result", ok["type"])
			assert.Equal(t, "tu_1", ok["tool_use_id"])
			assert.Equal(t, "found", ok["content"])
			assert.NotContains(t, ok, "is_error")

			failed, _ := blocks[1].(map[string]any)
			assert.Equal(t, true, failed["is_error"])
		}

		writeJSON(t, w, map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Let me look."},
				{"type": "tool_use", "id": "tu_2", "name": "search", "input": map[string]any{"q": "more"}},
			},
			"stop_reason": "tool_use",
		})
	})

	h := conversation.NewHistory(
		conversation.NewText(conversation.RoleUser, "find go"),
		conversation.NewMessage(conversation.RoleAssistant,
			conversation.ToolCall{ID: "tu_1", Name: "search", Arguments: `{"q":"go"}`},
		),
		conversation.NewToolResults(
			conversation.ToolResult{ToolCallID: "tu_1", Name: "search", Content: "found"},
			conversation.ToolResult{ToolCallID: "tu_x", Name: "nope", Content: "tool not found: nope", IsError: true},
		),
	)

	reply, err := adapter.Complete(context.Background(), h, []registry.Descriptor{{Name: "search"}})
	require.NoError(t, err)

	assert.Equal(t, "Let me look.", reply.TextContent())
	calls := reply.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu_2", calls[0].ID)
	assert.JSONEq(t, `{"q":"more"}`, calls[0].Arguments)
}

func TestComplete_ToolUseWithoutName(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"content": []map[string]any{{"type": "tool_use", "id": "tu_1"}},
		})
	})

	_, err := adapter.Complete(context.Background(), conversation.NewHistory(), nil)
	assert.ErrorIs(t, err, fault.ErrModelResponse)
}

func TestComplete_HTTPError(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	})

	_, err := adapter.Complete(context.Background(), conversation.NewHistory(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: unexpected status 401")
}
