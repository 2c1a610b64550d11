package conversation

// Part is a piece of content within a message.
type Part interface {
	PartKind() string
}

// Text is a plain text part.
type Text struct {
	Text string
}

func (Text) PartKind() string { return "text" }

// ToolCall is a model-issued request to invoke a named tool.
// Arguments holds the raw JSON text exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

func (ToolCall) PartKind() string { return "tool_call" }

// ToolResult is the outcome of one ToolCall. Failures are carried as content
// with IsError set; a ToolResult is always a value.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

func (ToolResult) PartKind() string { return "tool_result" }
