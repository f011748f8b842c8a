// ABOUTME: Lazy, pull-based reply stream with a single-assignment completion slot
// ABOUTME: Chunks are unbuffered so a slow consumer throttles the producer

package agent

import (
	"context"
	"errors"

	"github.com/2389/parley/internal/store"
)

// ErrNoMessage is reported when a producer ends without an error or a message.
var ErrNoMessage = errors.New("stream ended without a message")

// Stream is a reply being produced. Drain Chunks, then read Result.
type Stream struct {
	chunks chan string
	done   chan struct{}
	msg    *store.Message
	err    error
}

// Chunks yields text fragments in order and closes when production ends.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Result blocks until production ends and returns the final message or the
// error that ended it. Exactly one of the two is non-nil.
func (s *Stream) Result() (*store.Message, error) {
	<-s.done
	return s.msg, s.err
}

// Emit sends one chunk to the consumer, blocking until it is taken.
type Emit func(text string) error

// Generate runs produce on its own goroutine and exposes it as a Stream.
// emit fails once ctx is done, which is how an abandoned stream unwinds.
func Generate(ctx context.Context, produce func(ctx context.Context, emit Emit) (*store.Message, error)) *Stream {
	s := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
	}

	emit := func(text string) error {
		if text == "" {
			return nil
		}
		select {
		case s.chunks <- text:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(s.chunks)

		msg, err := produce(ctx, emit)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err == nil && msg == nil {
			err = ErrNoMessage
		}
		if err != nil {
			msg = nil
		}
		s.msg, s.err = msg, err
		close(s.done)
	}()

	return s
}

// Single is a Stream that yields msg's content as one chunk.
func Single(ctx context.Context, reply func(ctx context.Context) (*store.Message, error)) *Stream {
	return Generate(ctx, func(ctx context.Context, emit Emit) (*store.Message, error) {
		msg, err := reply(ctx)
		if err != nil {
			return nil, err
		}
		if err := emit(msg.Content); err != nil {
			return nil, err
		}
		return msg, nil
	})
}

// Collect drains a stream and returns its result.
func Collect(s *Stream) ([]string, *store.Message, error) {
	var chunks []string
	for c := range s.Chunks() {
		chunks = append(chunks, c)
	}
	msg, err := s.Result()
	return chunks, msg, err
}
