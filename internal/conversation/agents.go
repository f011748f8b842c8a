// ABOUTME: Agent service: list, create, fetch and update agents
// ABOUTME: Names are unique by slug; duplicates are rejected as bad requests

package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/store"
)

// AgentService manages agent descriptors.
type AgentService struct {
	agents store.AgentStore
	logger *slog.Logger
}

// NewAgentService creates an AgentService.
func NewAgentService(agents store.AgentStore, logger *slog.Logger) *AgentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentService{
		agents: agents,
		logger: logger.With("component", "agents"),
	}
}

// List returns every agent.
func (s *AgentService) List(ctx context.Context) ([]*store.Agent, error) {
	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		return nil, s.internal(ctx, "unable to get agents", err)
	}
	if agents == nil {
		agents = []*store.Agent{}
	}
	return agents, nil
}

// Get returns one agent.
func (s *AgentService) Get(ctx context.Context, id int64) (*store.Agent, error) {
	a, err := s.agents.GetAgent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Agent not found")
	}
	if err != nil {
		return nil, s.internal(ctx, "Unable to fetch agent", err, "agent_id", id)
	}
	return a, nil
}

// Create validates req and stores a new agent. A name whose slug is taken is a bad request.
func (s *AgentService) Create(ctx context.Context, req AgentRequest) (*store.Agent, error) {
	req, err := req.normalize(agent.TypeEcho)
	if err != nil {
		return nil, err
	}

	count, err := s.agents.CountAgentsByName(ctx, req.Name)
	if err != nil {
		return nil, s.internal(ctx, "Unable to create agent", err, "name", req.Name)
	}
	if count > 0 {
		return nil, badRequest("Agent name already exists")
	}

	a, err := s.agents.CreateAgent(ctx, store.CreateAgentParams{
		Name:    req.Name,
		Persona: req.Persona,
		Type:    req.Type,
	})
	if errors.Is(err, store.ErrDuplicateAgent) {
		return nil, badRequest("Agent name already exists")
	}
	if err != nil {
		return nil, s.internal(ctx, "Unable to create agent", err, "name", req.Name)
	}

	s.logger.Info("agent created", "agent_id", a.ID, "name", a.Name, "type", a.Type)
	return a, nil
}

// Update replaces an agent's name, persona and type.
func (s *AgentService) Update(ctx context.Context, id int64, req AgentRequest) (*store.Agent, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req, err = req.normalize(existing.Type)
	if err != nil {
		return nil, err
	}

	if store.Slugify(req.Name) != existing.Slug() {
		count, err := s.agents.CountAgentsByName(ctx, req.Name)
		if err != nil {
			return nil, s.internal(ctx, "Unable to update agent", err, "agent_id", id)
		}
		if count > 0 {
			return nil, badRequest("Agent name already exists")
		}
	}

	existing.Name = req.Name
	existing.Persona = req.Persona
	existing.Type = req.Type

	updated, err := s.agents.UpdateAgent(ctx, existing)
	switch {
	case errors.Is(err, store.ErrDuplicateAgent):
		return nil, badRequest("Agent name already exists")
	case errors.Is(err, store.ErrNotFound):
		return nil, notFound("Agent not found")
	case err != nil:
		return nil, s.internal(ctx, "Unable to update agent", err, "agent_id", id)
	}
	return updated, nil
}

// Seed creates each agent whose name is not taken yet.
func (s *AgentService) Seed(ctx context.Context, seeds []AgentRequest) error {
	for _, seed := range seeds {
		_, err := s.Create(ctx, seed)
		if err == nil {
			continue
		}
		if KindOf(err) == KindBadRequest {
			s.logger.Debug("skipping seed agent", "name", seed.Name, "reason", PublicMessage(err))
			continue
		}
		return err
	}
	return nil
}

func (s *AgentService) internal(ctx context.Context, msg string, err error, args ...any) *Error {
	s.logger.ErrorContext(ctx, msg, append(args, "error", err)...)
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}
