package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/comigor/wanderchat/internal/config"
	"github.com/comigor/wanderchat/pkg/chat"
)

// GeminiModel is the model every Gemini completion is requested with.
const GeminiModel = "gemini-1.5-flash"

// ErrNoTurn is returned when a conversation has nothing but system messages.
var ErrNoTurn = errors.New("conversation has no user or assistant turn")

// Gemini streams completions from the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini completer. Close releases the client.
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: GeminiModel}, nil
}

// StreamCompletion maps system messages to the system instruction, replays
// all but the final turn as chat history and streams the reply to the final turn.
func (g *Gemini) StreamCompletion(ctx context.Context, messages chat.Conversation) (Stream, error) {
	system, history, last, err := splitForGemini(messages)
	if err != nil {
		return nil, err
	}

	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history
	return &geminiStream{iter: cs.SendMessageStream(ctx, last.Parts...)}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func splitForGemini(messages chat.Conversation) (string, []*genai.Content, *genai.Content, error) {
	var system []string
	var turns []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			system = append(system, m.Content)
		case chat.RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(turns) == 0 {
		return "", nil, nil, ErrNoTurn
	}
	return strings.Join(system, "\n\n"), turns[:len(turns)-1], turns[len(turns)-1], nil
}

type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) Recv() (string, error) {
	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", io.EOF
	}
	if err != nil {
		return "", fmt.Errorf("gemini: recv: %w", err)
	}
	return extractText(resp), nil
}

func (s *geminiStream) Close() error { return nil }

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ Completer = (*Gemini)(nil)
