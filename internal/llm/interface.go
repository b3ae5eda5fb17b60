package llm

import (
	"context"

	"github.com/comigor/wanderchat/pkg/chat"
)

// Stream is an in-flight streamed completion. Recv returns the next text
// fragment, which may be empty when an upstream event carries no text, and
// io.EOF once the upstream signals completion. Close releases the
// underlying connection and must be called exactly once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Completer is the upstream capability the relay needs: given an ordered
// list of messages, stream the generated reply.
type Completer interface {
	StreamCompletion(ctx context.Context, messages chat.Conversation) (Stream, error)
}
