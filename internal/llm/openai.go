// ABOUTME: OpenAI chat-completions Completer built on openai-go
// ABOUTME: The persona becomes the leading system message of every request

package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/2389/parley/internal/store"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI completes conversations with the Chat Completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI completer.
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  modelOr(cfg.Model, DefaultOpenAIModel),
	}
}

// Complete returns the first choice of a non-streaming completion.
func (o *OpenAI) Complete(ctx context.Context, persona string, history []store.Message) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, o.params(persona, history))
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai completion: no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

// CompleteStream forwards each content delta to fn.
func (o *OpenAI) CompleteStream(ctx context.Context, persona string, history []store.Message, fn func(string) error) error {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(persona, history))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := fn(delta); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}

func (o *OpenAI) params(persona string, history []store.Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: openAIMessages(persona, history),
	}
}

// openAIMessages maps history onto chat roles with the persona first.
func openAIMessages(persona string, history []store.Message) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	msgs = append(msgs, openai.SystemMessage(persona))
	for _, m := range history {
		switch m.Role {
		case store.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}
