package types

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"
)

// Source identifies where a rendered message came from. The compressor
// uses it to tell protected memory content apart from the raw
// turn-by-turn conversation.
type Source string

const (
	// SourceConversation marks a raw conversation turn.
	SourceConversation Source = "conversation"

	// SourceLongTerm marks a long-term memory summary injected as a
	// system message.
	SourceLongTerm Source = "long_term"

	// SourceSemantic marks a semantic-memory hit injected as a system
	// message.
	SourceSemantic Source = "semantic"

	// SourceCompression marks a synthetic summary produced by the
	// context compressor.
	SourceCompression Source = "compression"
)

// Message is a rendered prompt message. This is the boundary shape the
// generator consumes: a role-tagged piece of text. Source is internal
// bookkeeping and not part of the wire contract.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Source  Source `json:"source,omitempty"`
}

// Protected reports whether the message carries memory content that the
// compressor must never summarize away. Synthetic summaries from an
// earlier compression pass stay protected too, so repeated compression
// cannot erode them.
func (m Message) Protected() bool {
	return m.Role == RoleSystem &&
		(m.Source == SourceLongTerm || m.Source == SourceSemantic || m.Source == SourceCompression)
}

// System returns a system message tagged with the given source.
func System(content string, source Source) Message {
	return Message{Role: RoleSystem, Content: content, Source: source}
}

// User returns a user conversation message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content, Source: SourceConversation}
}

// Assistant returns an assistant conversation message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Source: SourceConversation}
}
