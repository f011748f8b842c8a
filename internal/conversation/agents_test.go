package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func TestAgentService_Create(t *testing.T) {
	svc := NewAgentService(store.NewMockStore(), nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, AgentRequest{Name: "  Echo Bot ", Persona: " repeats "})
	require.NoError(t, err)
	assert.Equal(t, "Echo Bot", a.Name)
	assert.Equal(t, "repeats", a.Persona)
	assert.Equal(t, "echo", a.Type)
	assert.Equal(t, int64(1), a.ID)

	b, err := svc.Create(ctx, AgentRequest{Name: "Rocky", Persona: "plays", Type: "RPS"})
	require.NoError(t, err)
	assert.Equal(t, "rps", b.Type)
	assert.Greater(t, b.ID, a.ID)
}

func TestAgentService_Create_DuplicateName(t *testing.T) {
	ms := store.NewMockStore()
	svc := NewAgentService(ms, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, AgentRequest{Name: "Echo Bot", Persona: "p"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, AgentRequest{Name: "ECHO-bot", Persona: "p"})
	assert.Equal(t, KindBadRequest, KindOf(err))

	agents, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestAgentService_Create_Validation(t *testing.T) {
	svc := NewAgentService(store.NewMockStore(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  AgentRequest
	}{
		{"empty name", AgentRequest{Name: " ", Persona: "p"}},
		{"long name", AgentRequest{Name: strings.Repeat("n", MaxAgentNameLength+1), Persona: "p"}},
		{"empty persona", AgentRequest{Name: "ok", Persona: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			assert.Equal(t, KindBadRequest, KindOf(err))
		})
	}

	_, err := svc.Create(ctx, AgentRequest{Name: strings.Repeat("é", MaxAgentNameLength), Persona: "p"})
	assert.NoError(t, err)
}

func TestAgentService_GetAndUpdate(t *testing.T) {
	svc := NewAgentService(store.NewMockStore(), nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, AgentRequest{Name: "Alpha", Persona: "p", Type: "echo"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, AgentRequest{Name: "Beta", Persona: "p"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 99)
	assert.Equal(t, KindNotFound, KindOf(err))

	updated, err := svc.Update(ctx, a.ID, AgentRequest{Name: "alpha", Persona: "new persona"})
	require.NoError(t, err)
	assert.Equal(t, "alpha", updated.Name)
	assert.Equal(t, "new persona", updated.Persona)
	assert.Equal(t, "echo", updated.Type)

	_, err = svc.Update(ctx, a.ID, AgentRequest{Name: "BETA", Persona: "p"})
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = svc.Update(ctx, 99, AgentRequest{Name: "x", Persona: "p"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestAgentService_Seed(t *testing.T) {
	svc := NewAgentService(store.NewMockStore(), nil)
	ctx := context.Background()

	seeds := []AgentRequest{
		{Name: "Echo", Persona: "repeats", Type: "echo"},
		{Name: "Rocky", Persona: "plays", Type: "rps"},
	}
	require.NoError(t, svc.Seed(ctx, seeds))
	require.NoError(t, svc.Seed(ctx, seeds))

	agents, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}
