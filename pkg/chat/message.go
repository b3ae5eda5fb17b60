// Package chat holds the message-list contract shared by the relay and the
// conversation client.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidRole is returned when a message carries a role outside system, user and assistant.
var ErrInvalidRole = errors.New("invalid message role")

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered list of messages, oldest first. Entries are
// identified by position.
type Conversation []Message

// Validate checks every role in the conversation.
func (c Conversation) Validate() error {
	for i, m := range c {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: %w %q", i, ErrInvalidRole, m.Role)
		}
	}
	return nil
}

// Clone returns a copy that shares no backing array with c.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Last returns the final entry, or false when the conversation is empty.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// Prepend returns a new conversation with a system message holding prompt at
// position zero followed by every entry of c, unmodified. System messages
// already present in c are kept at their shifted positions.
func Prepend(prompt string, c Conversation) Conversation {
	out := make(Conversation, 0, len(c)+1)
	out = append(out, Message{Role: RoleSystem, Content: prompt})
	return append(out, c...)
}

// ErrNotConversation is returned when the body is not exactly one JSON array.
var ErrNotConversation = errors.New("body is not a single JSON array of messages")

// DecodeConversation reads a JSON array of messages from r and validates it.
// The array must be the whole body.
func DecodeConversation(r io.Reader) (Conversation, error) {
	dec := json.NewDecoder(r)
	var conv Conversation
	if err := dec.Decode(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("decode conversation: %w: null", ErrNotConversation)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode conversation: %w: trailing data", ErrNotConversation)
	}
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	return conv, nil
}
