// ABOUTME: Remote text-completion capability behind one Completer interface
// ABOUTME: New returns nil when no credential is configured so callers can degrade

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/parley/internal/store"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Completer generates the next assistant turn for a persona and history.
type Completer interface {
	// Complete returns the whole reply text.
	Complete(ctx context.Context, persona string, history []store.Message) (string, error)
	// CompleteStream calls fn with each text fragment in order. A non-nil error
	// from fn stops the stream and is returned.
	CompleteStream(ctx context.Context, persona string, history []store.Message, fn func(string) error) error
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// New builds the configured Completer. It returns nil, nil when no api key is
// set; that is the signal to run without a remote model.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Completer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm")

	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("no llm api key configured, remote agents will echo")
		return nil, nil
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		logger.Info("llm provider configured", "provider", ProviderOpenAI, "model", modelOr(cfg.Model, DefaultOpenAIModel))
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		c, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("llm provider configured", "provider", ProviderGemini, "model", modelOr(cfg.Model, DefaultGeminiModel))
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
