package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "parley.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	agent, err := s.CreateAgent(ctx, CreateAgentParams{Name: "Echo", Persona: "p", Type: "echo"})
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, ConversationSeed{AgentID: agent.ID, Message: NewMessage(RoleUser, "hi")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.AgentID)
	assert.Equal(t, "hi", got.Messages[0].Content)

	next, err := reopened.CreateAgent(ctx, CreateAgentParams{Name: "Other", Persona: "p", Type: "echo"})
	require.NoError(t, err)
	assert.Greater(t, next.ID, agent.ID)
}

func TestIsConstraintViolation(t *testing.T) {
	assert.False(t, isConstraintViolation(nil))
	assert.False(t, isConstraintViolation(errors.New("disk I/O error")))
	assert.True(t, isConstraintViolation(errors.New("constraint failed: UNIQUE constraint failed: agents.slug (2067)")))
}
