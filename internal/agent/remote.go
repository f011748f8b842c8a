// ABOUTME: Remote-LLM strategy delegating to an llm.Completer
// ABOUTME: Without a completer every call is answered by the fallback strategy

package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Remote asks an external model for the reply.
type Remote struct {
	completer llm.Completer
	fallback  Strategy
}

// NewRemote creates a Remote strategy. A nil completer means every call is
// answered by fallback.
func NewRemote(completer llm.Completer, fallback Strategy) *Remote {
	return &Remote{completer: completer, fallback: fallback}
}

// Name implements Strategy.
func (r *Remote) Name() string { return TypeLLM }

// Available reports whether a remote model is configured.
func (r *Remote) Available() bool {
	return r.completer != nil
}

// Reply implements Strategy.
func (r *Remote) Reply(ctx context.Context, req Request) (*store.Message, error) {
	if !r.Available() {
		return r.fallback.Reply(ctx, req)
	}

	text, err := r.completer.Complete(ctx, req.Persona, req.Messages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyReply
	}
	msg := store.NewMessage(store.RoleAssistant, text)
	return &msg, nil
}

// ReplyStream implements Strategy, forwarding every fragment as a chunk.
func (r *Remote) ReplyStream(ctx context.Context, req Request) *Stream {
	if !r.Available() {
		return r.fallback.ReplyStream(ctx, req)
	}

	return Generate(ctx, func(ctx context.Context, emit Emit) (*store.Message, error) {
		var content strings.Builder
		err := r.completer.CompleteStream(ctx, req.Persona, req.Messages, func(fragment string) error {
			content.WriteString(fragment)
			return emit(fragment)
		})
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(content.String()) == "" {
			return nil, ErrEmptyReply
		}
		msg := store.NewMessage(store.RoleAssistant, content.String())
		return &msg, nil
	})
}
