package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func TestNew_NoKeyMeansNoCompleter(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: ProviderOpenAI, APIKey: "   "}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "carrier-pigeon", APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestNew_OpenAIDefaults(t *testing.T) {
	c, err := New(context.Background(), Config{APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	o, ok := c.(*OpenAI)
	require.True(t, ok)
	assert.Equal(t, DefaultOpenAIModel, o.model)
}

func TestOpenAIMessages_PersonaFirst(t *testing.T) {
	history := []store.Message{
		store.NewMessage(store.RoleUser, "hi"),
		store.NewMessage(store.RoleAssistant, "hello"),
		store.NewMessage(store.RoleUser, "how are you"),
	}
	msgs := openAIMessages("You are terse.", history)
	require.Len(t, msgs, 4)
	require.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
	assert.NotNil(t, msgs[3].OfUser)
}

func TestGeminiContents_Roles(t *testing.T) {
	contents := geminiContents([]store.Message{
		store.NewMessage(store.RoleUser, "hi"),
		store.NewMessage(store.RoleAssistant, "hello"),
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}
