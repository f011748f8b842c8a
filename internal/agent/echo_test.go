package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func TestEcho_Reply(t *testing.T) {
	msg, err := NewEcho(0).Reply(context.Background(), Request{
		Persona:  "ignored",
		Messages: conversation("hello", "Echo: hello", "again"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Echo: again", msg.Content)
	assert.Equal(t, store.RoleAssistant, msg.Role)
	assert.Len(t, msg.ID, 21)
}

func TestEcho_StreamEquivalence(t *testing.T) {
	chunks, msg, err := Collect(NewEcho(0).ReplyStream(context.Background(), Request{Messages: conversation("ping")}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Echo: ping"}, chunks)
	assert.Equal(t, strings.Join(chunks, ""), msg.Content)
}

func TestEcho_DelayHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := NewEcho(time.Hour).Reply(ctx, Request{Messages: conversation("hi")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEcho_Delay(t *testing.T) {
	start := time.Now()
	_, err := NewEcho(20 * time.Millisecond).Reply(context.Background(), Request{Messages: conversation("hi")})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
