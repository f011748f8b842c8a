// ABOUTME: Echo strategy repeating the last user message after a fixed delay
// ABOUTME: Also the fallback for unknown tags and for remote agents without credentials

package agent

import (
	"context"
	"time"

	"github.com/2389/parley/internal/store"
)

// DefaultEchoDelay is the pause before an echo reply.
const DefaultEchoDelay = 300 * time.Millisecond

// EchoPrefix starts every echo reply.
const EchoPrefix = "Echo: "

// Echo replies with the last user message prefixed by "Echo: ".
type Echo struct {
	delay time.Duration
}

// NewEcho creates an Echo strategy. A zero delay answers immediately.
func NewEcho(delay time.Duration) *Echo {
	return &Echo{delay: delay}
}

// Name implements Strategy.
func (e *Echo) Name() string { return TypeEcho }

// Reply implements Strategy.
func (e *Echo) Reply(ctx context.Context, req Request) (*store.Message, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	msg := store.NewMessage(store.RoleAssistant, echoContent(req))
	return &msg, nil
}

// ReplyStream implements Strategy with a single chunk.
func (e *Echo) ReplyStream(ctx context.Context, req Request) *Stream {
	return Single(ctx, func(ctx context.Context) (*store.Message, error) {
		return e.Reply(ctx, req)
	})
}

func (e *Echo) wait(ctx context.Context) error {
	if e.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func echoContent(req Request) string {
	last := req.LastUserMessage()
	if last == nil {
		return EchoPrefix
	}
	return EchoPrefix + last.Content
}
