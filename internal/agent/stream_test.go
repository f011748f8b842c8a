package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func TestGenerate_AbandonedStreamProducesNoMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := Generate(ctx, func(ctx context.Context, emit Emit) (*store.Message, error) {
		for {
			if err := emit("tick"); err != nil {
				return nil, err
			}
		}
	})

	<-s.Chunks()
	cancel()
	for range s.Chunks() {
	}

	msg, err := s.Result()
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_NilMessageIsAnError(t *testing.T) {
	s := Generate(context.Background(), func(ctx context.Context, emit Emit) (*store.Message, error) {
		return nil, nil
	})
	_, msg, err := Collect(s)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestGenerate_SkipsEmptyChunks(t *testing.T) {
	s := Generate(context.Background(), func(ctx context.Context, emit Emit) (*store.Message, error) {
		require.NoError(t, emit(""))
		require.NoError(t, emit("a"))
		m := store.NewMessage(store.RoleAssistant, "a")
		return &m, nil
	})
	chunks, msg, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, chunks)
	assert.Equal(t, "a", msg.Content)
}
