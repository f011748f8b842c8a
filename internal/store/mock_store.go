// ABOUTME: In-memory Store implementation used by tests and the memory backend
// ABOUTME: Copies records on every read and write so callers never alias stored state

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation.
type MockStore struct {
	mu            sync.RWMutex
	agents        map[int64]*Agent         // keyed by agent ID
	conversations map[string]*Conversation // keyed by conversation ID
	nextAgentID   int64

	// Writes counts successful conversation writes, for tests asserting no side effects.
	Writes int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		agents:        make(map[int64]*Agent),
		conversations: make(map[string]*Conversation),
	}
}

// GetAgent retrieves an agent by ID.
func (m *MockStore) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *a
	return &result, nil
}

// CreateAgent stores a new agent with the next sequential id.
func (m *MockStore) CreateAgent(ctx context.Context, params CreateAgentParams) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slug := Slugify(params.Name)
	for _, a := range m.agents {
		if a.Slug() == slug {
			return nil, ErrDuplicateAgent
		}
	}

	m.nextAgentID++
	now := time.Now().UTC()
	a := &Agent{
		ID:        m.nextAgentID,
		Name:      params.Name,
		Persona:   params.Persona,
		Type:      params.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.agents[a.ID] = a

	result := *a
	return &result, nil
}

// UpdateAgent replaces the mutable fields of an existing agent.
func (m *MockStore) UpdateAgent(ctx context.Context, agent *Agent) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.agents[agent.ID]
	if !ok {
		return nil, ErrNotFound
	}
	slug := agent.Slug()
	for id, a := range m.agents {
		if id != agent.ID && a.Slug() == slug {
			return nil, ErrDuplicateAgent
		}
	}

	updated := *existing
	updated.Name = agent.Name
	updated.Persona = agent.Persona
	updated.Type = agent.Type
	updated.UpdatedAt = touch(existing.CreatedAt)
	m.agents[agent.ID] = &updated

	result := updated
	return &result, nil
}

// CountAgentsByName counts agents sharing the slug of name.
func (m *MockStore) CountAgentsByName(ctx context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slug := Slugify(name)
	count := 0
	for _, a := range m.agents {
		if a.Slug() == slug {
			count++
		}
	}
	return count, nil
}

// ListAgents returns all agents ordered by id.
func (m *MockStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CreateConversation stores a new conversation holding the seed message.
func (m *MockStore) CreateConversation(ctx context.Context, seed ConversationSeed) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := newConversation(seed)
	m.conversations[c.ID] = c.Clone()
	m.Writes++
	return c, nil
}

// UpdateConversation overwrites a stored conversation.
func (m *MockStore) UpdateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.conversations[conv.ID]
	if !ok {
		return nil, ErrNotFound
	}

	updated := conv.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = touch(existing.CreatedAt)
	m.conversations[conv.ID] = updated
	m.Writes++
	return updated.Clone(), nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
