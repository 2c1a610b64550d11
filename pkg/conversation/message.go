package conversation

import "strings"

// Message is a single entry in a conversation. It is a value type.
type Message struct {
	Role  Role
	Parts []Part
}

// NewMessage creates a message with the given role and parts.
func NewMessage(r Role, parts ...Part) Message {
	return Message{Role: r, Parts: parts}
}

// NewText creates a message holding a single Text part.
func NewText(r Role, text string) Message {
	return NewMessage(r, Text{Text: text})
}

// NewToolResults creates a tool-role message carrying the given results.
func NewToolResults(results ...ToolResult) Message {
	parts := make([]Part, len(results))
	for i, r := range results {
		parts[i] = r
	}
	return Message{Role: RoleTool, Parts: parts}
}

// TextContent concatenates the text of all Text parts.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the ToolCall parts in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// ToolResults returns the ToolResult parts in order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResult); ok {
			results = append(results, tr)
		}
	}
	return results
}
