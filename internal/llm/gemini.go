// ABOUTME: Gemini Completer built on google.golang.org/genai
// ABOUTME: The persona is sent as the system instruction; assistant turns map to the model role

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/2389/parley/internal/store"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini completes conversations with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  modelOr(cfg.Model, DefaultGeminiModel),
	}, nil
}

// Complete returns the text of a single generation.
func (g *Gemini) Complete(ctx context.Context, persona string, history []store.Message) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(history), geminiConfig(persona))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// CompleteStream forwards each streamed text part to fn.
func (g *Gemini) CompleteStream(ctx context.Context, persona string, history []store.Message, fn func(string) error) error {
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, geminiContents(history), geminiConfig(persona)) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := fn(text); err != nil {
			return err
		}
	}
	return nil
}

func geminiConfig(persona string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(persona, genai.RoleUser),
	}
}

func geminiContents(history []store.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == store.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}
