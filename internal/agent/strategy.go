// ABOUTME: Strategy capability set shared by every agent behavior
// ABOUTME: A strategy answers a conversation either all at once or as a lazy Stream

package agent

import (
	"context"

	"github.com/2389/parley/internal/store"
)

// Strategy tags stored on agents.
const (
	TypeEcho = "echo"
	TypeRPS  = "rps"
	TypeLLM  = "llm"
)

// Request is what a strategy sees: the agent persona and the full history,
// ending with the user message being answered.
type Request struct {
	Persona  string
	Messages []store.Message
}

// LastUserMessage returns the most recent user message, or nil.
func (r Request) LastUserMessage() *store.Message {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == store.RoleUser {
			return &r.Messages[i]
		}
	}
	return nil
}

// Strategy produces the next assistant message for a conversation.
type Strategy interface {
	// Name is the tag the strategy is registered under, used in logs and metrics.
	Name() string
	// Reply returns a complete assistant message.
	Reply(ctx context.Context, req Request) (*store.Message, error)
	// ReplyStream returns a Stream whose concatenated chunks equal the final
	// message content. Cancelling ctx stops production.
	ReplyStream(ctx context.Context, req Request) *Stream
}
