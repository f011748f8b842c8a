// ABOUTME: SQLite-backed Store implementation using modernc.org/sqlite (pure Go)
// ABOUTME: Agents live in a table with a unique slug; conversation histories are JSON columns

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "backend", "sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			persona TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			agent_id INTEGER NOT NULL,
			messages TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations(agent_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, persona, type, created_at, updated_at
		FROM agents WHERE id = ?
	`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return a, nil
}

// CreateAgent inserts an agent and lets SQLite assign the id.
func (s *SQLiteStore) CreateAgent(ctx context.Context, params CreateAgentParams) (*Agent, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (slug, name, persona, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, Slugify(params.Name), params.Name, params.Persona, params.Type, formatTime(now), formatTime(now))
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicateAgent
		}
		return nil, fmt.Errorf("inserting agent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading agent id: %w", err)
	}

	return &Agent{
		ID:        id,
		Name:      params.Name,
		Persona:   params.Persona,
		Type:      params.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateAgent replaces name, persona and type of an existing agent.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *Agent) (*Agent, error) {
	existing, err := s.GetAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	updatedAt := touch(existing.CreatedAt)
	_, err = s.db.ExecContext(ctx, `
		UPDATE agents SET slug = ?, name = ?, persona = ?, type = ?, updated_at = ?
		WHERE id = ?
	`, agent.Slug(), agent.Name, agent.Persona, agent.Type, formatTime(updatedAt), agent.ID)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicateAgent
		}
		return nil, fmt.Errorf("updating agent: %w", err)
	}

	existing.Name = agent.Name
	existing.Persona = agent.Persona
	existing.Type = agent.Type
	existing.UpdatedAt = updatedAt
	return existing, nil
}

// CountAgentsByName counts agents sharing the slug of name.
func (s *SQLiteStore) CountAgentsByName(ctx context.Context, name string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE slug = ?`, Slugify(name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting agents: %w", err)
	}
	return count, nil
}

// ListAgents returns all agents ordered by id.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, persona, type, created_at, updated_at
		FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// CreateConversation inserts a conversation holding the seed message.
func (s *SQLiteStore) CreateConversation(ctx context.Context, seed ConversationSeed) (*Conversation, error) {
	c := newConversation(seed)
	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return nil, fmt.Errorf("encoding messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, agent_id, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.AgentID, string(messages), formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	return c, nil
}

// UpdateConversation overwrites the message history of an existing conversation.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	existing, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	updated := conv.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = touch(existing.CreatedAt)

	messages, err := json.Marshal(updated.Messages)
	if err != nil {
		return nil, fmt.Errorf("encoding messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET agent_id = ?, messages = ?, updated_at = ?
		WHERE id = ?
	`, updated.AgentID, string(messages), formatTime(updated.UpdatedAt), updated.ID)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	return updated, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var (
		c                    Conversation
		messages             string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, messages, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.AgentID, &messages, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		a                    Agent
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Persona, &a.Type, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// isConstraintViolation checks if an error is a SQLite constraint violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
