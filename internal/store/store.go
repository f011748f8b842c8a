// ABOUTME: Store interfaces and data types for parley persistence
// ABOUTME: Defines Agent, Conversation, Message and the AgentStore/ConversationStore contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateAgent is returned when an agent slug is already taken
var ErrDuplicateAgent = errors.New("agent already exists")

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single immutable entry in a conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is an ordered message history bound to one agent.
type Conversation struct {
	ID        string    `json:"id"`
	AgentID   int64     `json:"agentId"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LastMessage returns the most recent message, or nil for an empty history.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Clone returns a deep copy so callers cannot alias stored history.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return &out
}

// Agent is a named persona paired with a strategy tag.
type Agent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Persona   string    `json:"persona"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Slug returns the normalized name used for uniqueness checks.
func (a *Agent) Slug() string {
	return Slugify(a.Name)
}

// CreateAgentParams holds the caller-supplied fields of a new agent.
type CreateAgentParams struct {
	Name    string
	Persona string
	Type    string
}

// ConversationSeed holds what a new conversation starts with.
type ConversationSeed struct {
	AgentID int64
	Message Message
}

// AgentStore persists agents.
type AgentStore interface {
	// GetAgent returns ErrNotFound when the id is unknown.
	GetAgent(ctx context.Context, id int64) (*Agent, error)
	// CreateAgent assigns the next id and timestamps.
	CreateAgent(ctx context.Context, params CreateAgentParams) (*Agent, error)
	// UpdateAgent replaces name, persona and type and refreshes UpdatedAt.
	UpdateAgent(ctx context.Context, agent *Agent) (*Agent, error)
	// CountAgentsByName counts agents whose slug matches the slug of name.
	CountAgentsByName(ctx context.Context, name string) (int, error)
	// ListAgents returns all agents ordered by id.
	ListAgents(ctx context.Context) ([]*Agent, error)
}

// ConversationStore persists conversations as whole documents.
type ConversationStore interface {
	// CreateConversation generates the id and timestamps and stores the seed message.
	CreateConversation(ctx context.Context, seed ConversationSeed) (*Conversation, error)
	// UpdateConversation writes the full conversation and refreshes UpdatedAt.
	UpdateConversation(ctx context.Context, conv *Conversation) (*Conversation, error)
	// GetConversation returns ErrNotFound when the id is unknown.
	GetConversation(ctx context.Context, id string) (*Conversation, error)
}

// Store is implemented by every backend.
type Store interface {
	AgentStore
	ConversationStore

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// newConversation builds the stored form of a seed.
func newConversation(seed ConversationSeed) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        NewID(),
		AgentID:   seed.AgentID,
		Messages:  []Message{seed.Message},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// touch refreshes UpdatedAt without letting it precede CreatedAt.
func touch(created time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(created) {
		return created
	}
	return now
}
