package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged entry of a conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Valid reports whether the role is one the relay understands.
func (m Message) Valid() bool {
	return m.Role == RoleUser || m.Role == RoleAssistant
}

// Conversation is the ordered transcript sent as a relay request.
type Conversation []Message

// Last returns the most recent message and false for an empty conversation.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// Clone returns a copy that shares no backing array with c.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}
