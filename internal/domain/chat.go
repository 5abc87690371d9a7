package domain

// ChatRole identifies the author of a chat message.
type ChatRole string

// Chat roles understood by OpenAI-compatible providers.
const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

// ToolCall is one structured tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as produced by the model
}

// ChatMessage is one entry of a chat transcript.
type ChatMessage struct {
	Role       ChatRole
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
}

// ChatCompletion is the model's reply: prose, tool calls, or both.
type ChatCompletion struct {
	Content   string
	ToolCalls []ToolCall
}

// Message returns the reply as an assistant transcript entry.
func (c ChatCompletion) Message() ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: c.Content, ToolCalls: c.ToolCalls}
}
