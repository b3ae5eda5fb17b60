// Package relay forwards a conversation to the upstream model and re-emits
// the streamed reply, fragment by fragment, to the caller.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/comigor/wanderchat/internal/llm"
	"github.com/comigor/wanderchat/internal/logger"
	"github.com/comigor/wanderchat/pkg/chat"
)

var (
	// ErrUpstream wraps failures raised while opening or consuming the upstream stream.
	ErrUpstream = errors.New("upstream failure")
	// ErrDownstream wraps failures writing a fragment to the caller.
	ErrDownstream = errors.New("downstream failure")
)

// Sink receives fragments in upstream order.
type Sink interface {
	WriteFragment(text string) error
}

// Relay is stateless across calls and safe for concurrent use.
type Relay struct {
	completer llm.Completer
	prompt    string
}

// New creates a relay that injects SystemPrompt in front of every conversation.
func New(completer llm.Completer) *Relay {
	return &Relay{completer: completer, prompt: SystemPrompt}
}

// Open prepends the system prompt to conv and opens the upstream stream.
func (r *Relay) Open(ctx context.Context, conv chat.Conversation) (llm.Stream, error) {
	stream, err := r.completer.StreamCompletion(ctx, chat.Prepend(r.prompt, conv))
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrUpstream, err)
	}
	return stream, nil
}

// Pump forwards every non-empty fragment of stream to sink as soon as it
// arrives and closes stream before returning. It returns the number of
// fragments forwarded; a nil error means the upstream reached end-of-stream.
func Pump(stream llm.Stream, sink Sink) (n int, err error) {
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.L.Warn("upstream close failed", "error", cerr)
		}
	}()

	for {
		frag, rerr := stream.Recv()
		if errors.Is(rerr, io.EOF) {
			return n, nil
		}
		if rerr != nil {
			return n, fmt.Errorf("%w: %w", ErrUpstream, rerr)
		}
		if frag == "" {
			continue
		}
		if werr := sink.WriteFragment(frag); werr != nil {
			return n, fmt.Errorf("%w: %w", ErrDownstream, werr)
		}
		n++
	}
}

// Stream opens the upstream for conv and pumps it into sink.
func (r *Relay) Stream(ctx context.Context, conv chat.Conversation, sink Sink) (int, error) {
	stream, err := r.Open(ctx, conv)
	if err != nil {
		return 0, err
	}
	return Pump(stream, sink)
}
