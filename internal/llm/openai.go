package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/wanderchat/internal/config"
	"github.com/comigor/wanderchat/pkg/chat"
)

// OpenAIModel is the model every OpenAI completion is requested with.
const OpenAIModel = "gpt-4o-mini-2024-07-18"

// openAIClient is the subset of *openai.Client used by the completer.
type openAIClient interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAI streams completions from the OpenAI chat completions API.
type OpenAI struct {
	client openAIClient
	model  string
}

// NewOpenAI creates an OpenAI completer. An empty BaseURL keeps the public endpoint.
func NewOpenAI(cfg config.LLMConfig) *OpenAI {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  OpenAIModel,
	}
}

// StreamCompletion opens a streamed chat completion.
func (o *OpenAI) StreamCompletion(ctx context.Context, messages chat.Conversation) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: create stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

func toOpenAIMessages(messages chat.Conversation) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case chat.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case chat.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", fmt.Errorf("openai: recv: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

var _ Completer = (*OpenAI)(nil)
