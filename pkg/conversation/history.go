package conversation

// History is the mutable transcript of one session. The zero value is ready
// to use. History is not safe for concurrent use.
type History struct {
	messages []Message
}

// NewHistory creates a History pre-populated with msgs.
func NewHistory(msgs ...Message) *History {
	h := &History{}
	h.Append(msgs...)
	return h
}

// Append adds messages to the end of the transcript.
func (h *History) Append(msgs ...Message) {
	h.messages = append(h.messages, msgs...)
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.messages) }

// Last returns the most recent message, or false when empty.
func (h *History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Messages returns a copy of the transcript.
func (h *History) Messages() []Message {
	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// SystemPrompt returns the text of the first system message, or "".
func (h *History) SystemPrompt() string {
	for _, m := range h.messages {
		if m.Role == RoleSystem {
			return m.TextContent()
		}
	}
	return ""
}
