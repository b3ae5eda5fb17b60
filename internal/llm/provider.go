package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/comigor/wanderchat/internal/config"
)

// ErrUnknownProvider is returned for a provider name other than openai or gemini.
var ErrUnknownProvider = errors.New("unknown llm provider")

// NewCompleter builds the completer named by cfg.Provider. A missing API key
// is not checked here; the upstream rejects the call and the relay reports it.
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", config.ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case config.ProviderGemini:
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
