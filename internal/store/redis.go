// ABOUTME: Redis-backed Store implementation using go-redis v9
// ABOUTME: Keys follow agent:<id>:<slug> and conversation:<agentId>:<id> with JSON values

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	agentSeqKey   = "agents:seq"
	scanBatchSize = 100
)

// RedisStore implements Store on a Redis keyspace.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to the Redis server at url (redis://host:port/db).
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	s := NewRedisStoreFromClient(client)
	s.logger.Info("Redis store initialized", "addr", opts.Addr, "db", opts.DB)
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		logger: slog.Default().With("component", "store", "backend", "redis"),
	}
}

// Client exposes the underlying client so the lock can share the connection pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// AgentKey is the storage key of an agent.
func AgentKey(id int64, slug string) string {
	return fmt.Sprintf("agent:%d:%s", id, slug)
}

// ConversationKey is the storage key of a conversation.
func ConversationKey(agentID int64, id string) string {
	return fmt.Sprintf("conversation:%d:%s", agentID, id)
}

func slugIndexKey(slug string) string {
	return "agent-slug:" + slug
}

// GetAgent retrieves an agent by ID.
func (s *RedisStore) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	keys, err := s.scanKeys(ctx, fmt.Sprintf("agent:%d:*", id))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}

	var a Agent
	if err := s.getJSON(ctx, keys[0], &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAgent reserves the slug, allocates the next id and writes the agent.
func (s *RedisStore) CreateAgent(ctx context.Context, params CreateAgentParams) (*Agent, error) {
	slug := Slugify(params.Name)
	reserved, err := s.client.SetNX(ctx, slugIndexKey(slug), "", 0).Result()
	if err != nil {
		return nil, fmt.Errorf("reserving agent slug: %w", err)
	}
	if !reserved {
		return nil, ErrDuplicateAgent
	}

	id, err := s.client.Incr(ctx, agentSeqKey).Result()
	if err != nil {
		s.client.Del(ctx, slugIndexKey(slug))
		return nil, fmt.Errorf("allocating agent id: %w", err)
	}

	now := time.Now().UTC()
	a := &Agent{
		ID:        id,
		Name:      params.Name,
		Persona:   params.Persona,
		Type:      params.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding agent: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, slugIndexKey(slug), strconv.FormatInt(id, 10), 0)
		pipe.Set(ctx, AgentKey(id, slug), data, 0)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing agent: %w", err)
	}
	return a, nil
}

// UpdateAgent rewrites an agent, moving it to a new key when its slug changes.
func (s *RedisStore) UpdateAgent(ctx context.Context, agent *Agent) (*Agent, error) {
	existing, err := s.GetAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	oldSlug, newSlug := existing.Slug(), agent.Slug()
	if oldSlug != newSlug {
		reserved, err := s.client.SetNX(ctx, slugIndexKey(newSlug), strconv.FormatInt(agent.ID, 10), 0).Result()
		if err != nil {
			return nil, fmt.Errorf("reserving agent slug: %w", err)
		}
		if !reserved {
			return nil, ErrDuplicateAgent
		}
	}

	existing.Name = agent.Name
	existing.Persona = agent.Persona
	existing.Type = agent.Type
	existing.UpdatedAt = touch(existing.CreatedAt)

	data, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("encoding agent: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if oldSlug != newSlug {
			pipe.Del(ctx, AgentKey(existing.ID, oldSlug), slugIndexKey(oldSlug))
		}
		pipe.Set(ctx, AgentKey(existing.ID, newSlug), data, 0)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing agent: %w", err)
	}
	return existing, nil
}

// CountAgentsByName counts agent keys ending in the slug of name.
func (s *RedisStore) CountAgentsByName(ctx context.Context, name string) (int, error) {
	keys, err := s.scanKeys(ctx, "agent:*:"+Slugify(name))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ListAgents returns all agents ordered by id.
func (s *RedisStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	keys, err := s.scanKeys(ctx, "agent:*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}

	agents := make([]*Agent, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a Agent
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decoding agent %s: %w", keys[i], err)
		}
		agents = append(agents, &a)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].ID < agents[j].ID
	})
	return agents, nil
}

// CreateConversation writes a conversation holding the seed message.
func (s *RedisStore) CreateConversation(ctx context.Context, seed ConversationSeed) (*Conversation, error) {
	c := newConversation(seed)
	if err := s.setJSON(ctx, ConversationKey(c.AgentID, c.ID), c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateConversation overwrites an existing conversation document.
func (s *RedisStore) UpdateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	existing, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	updated := conv.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = touch(existing.CreatedAt)
	if err := s.setJSON(ctx, ConversationKey(updated.AgentID, updated.ID), updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// GetConversation finds a conversation by id regardless of its agent.
func (s *RedisStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	keys, err := s.scanKeys(ctx, "conversation:*:"+escapeGlob(id))
	if err != nil {
		return nil, err
	}

	suffix := ":" + id
	for _, key := range keys {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		var c Conversation
		if err := s.getJSON(ctx, key, &c); err != nil {
			return nil, err
		}
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
