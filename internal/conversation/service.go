// ABOUTME: Conversation orchestrator: starts and continues conversations with an agent
// ABOUTME: The user message is persisted before the strategy runs; the reply only after it succeeds

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/lock"
	"github.com/2389/parley/internal/metrics"
	"github.com/2389/parley/internal/store"
)

// persistTimeout bounds the final write once a reply has been produced.
const persistTimeout = 5 * time.Second

// StrategyResolver maps an agent type tag to a strategy.
type StrategyResolver interface {
	Resolve(tag string) agent.Strategy
}

// ChunkSink receives streamed text as it is produced.
type ChunkSink interface {
	Chunk(text string) error
}

// LockScope selects how conversation writes are serialized.
type LockScope string

const (
	// LockNone writes without locking; concurrent turns race and the last write wins.
	LockNone LockScope = "none"
	// LockWrite takes the lock around each conversation write.
	LockWrite LockScope = "write"
	// LockTurn holds the lock for a whole continue turn, serializing turns on one conversation.
	LockTurn LockScope = "turn"
)

// ParseLockScope validates a configured scope. Empty means LockWrite.
func ParseLockScope(s string) (LockScope, error) {
	switch LockScope(s) {
	case "":
		return LockWrite, nil
	case LockNone, LockWrite, LockTurn:
		return LockScope(s), nil
	default:
		return "", fmt.Errorf("unknown lock scope %q", s)
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLocker guards conversation writes with l according to scope.
func WithLocker(l lock.Locker, scope LockScope) Option {
	return func(s *Service) {
		s.locker = l
		s.lockScope = scope
	}
}

// Service orchestrates conversation turns.
type Service struct {
	agents        store.AgentStore
	conversations store.ConversationStore
	strategies    StrategyResolver
	locker        lock.Locker
	lockScope     LockScope
	logger        *slog.Logger
}

// New creates a conversation Service. Without WithLocker, writes are not locked.
func New(agents store.AgentStore, conversations store.ConversationStore, strategies StrategyResolver, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		agents:        agents,
		conversations: conversations,
		strategies:    strategies,
		lockScope:     LockNone,
		logger:        logger.With("component", "conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.lockScope = LockNone
	}
	return s
}

// CreateResult is the batch answer to a new conversation.
type CreateResult struct {
	ConversationID string         `json:"conversationId"`
	Answer         *store.Message `json:"answer"`
}

// Create starts a conversation and waits for the whole reply.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	turn, err := s.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	answer, err := turn.Reply(ctx)
	if err != nil {
		return nil, err
	}
	return &CreateResult{ConversationID: turn.ConversationID(), Answer: answer}, nil
}

// SendMessage continues a conversation and returns it with the reply appended.
func (s *Service) SendMessage(ctx context.Context, id string, req SendRequest) (*store.Conversation, error) {
	turn, err := s.Continue(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if _, err := turn.Reply(ctx); err != nil {
		return nil, err
	}
	return turn.Conversation(), nil
}

// GetConversation loads a conversation by id.
func (s *Service) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	return s.loadConversation(ctx, id)
}

// Begin validates req, resolves the agent and persists a new conversation
// seeded with the opening message. The returned Turn produces the reply.
func (s *Service) Begin(ctx context.Context, req CreateRequest) (*Turn, error) {
	message, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	ag, err := s.loadAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	conv, err := s.conversations.CreateConversation(ctx, store.ConversationSeed{
		AgentID: ag.ID,
		Message: store.NewMessage(store.RoleUser, message),
	})
	if err != nil {
		return nil, s.internal(ctx, "Unable to create conversation", err, "agent_id", ag.ID)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "agent_id", ag.ID)
	return s.newTurn(conv, ag, nil), nil
}

// Continue validates req, loads the conversation and its agent, and persists
// the new user message before returning the Turn that produces the reply.
func (s *Service) Continue(ctx context.Context, id string, req SendRequest) (*Turn, error) {
	message, err := validateSend(id, req)
	if err != nil {
		return nil, err
	}

	var release func()
	if s.lockScope == LockTurn {
		lease, err := s.locker.Acquire(ctx, "conversation:"+id+"-turn")
		if err != nil {
			return nil, s.internal(ctx, "Unable to update conversation", err, "conversation_id", id)
		}
		release = func() {
			if err := lease.Release(context.Background()); err != nil {
				s.logger.Warn("failed to release turn lock", "conversation_id", id, "error", err)
			}
		}
	}

	turn, err := s.prepareContinue(ctx, id, message)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, err
	}
	turn.release = release
	return turn, nil
}

func (s *Service) prepareContinue(ctx context.Context, id, message string) (*Turn, error) {
	conv, err := s.loadConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	ag, err := s.loadAgent(ctx, conv.AgentID)
	if err != nil {
		return nil, err
	}

	conv.Messages = append(conv.Messages, store.NewMessage(store.RoleUser, message))
	conv, err = s.persist(ctx, conv)
	if err != nil {
		return nil, s.internal(ctx, "Unable to update conversation", err, "conversation_id", id)
	}

	return s.newTurn(conv, ag, nil), nil
}

func (s *Service) loadAgent(ctx context.Context, id int64) (*store.Agent, error) {
	ag, err := s.agents.GetAgent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Agent not found")
	}
	if err != nil {
		return nil, s.internal(ctx, "Unable to fetch agent", err, "agent_id", id)
	}
	return ag, nil
}

func (s *Service) loadConversation(ctx context.Context, id string) (*store.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Conversation not found")
	}
	if err != nil {
		return nil, s.internal(ctx, "Unable to get conversation", err, "conversation_id", id)
	}
	return conv, nil
}

// persist writes conv, under the per-conversation lock when the scope asks for it.
func (s *Service) persist(ctx context.Context, conv *store.Conversation) (*store.Conversation, error) {
	if s.lockScope != LockWrite {
		return s.conversations.UpdateConversation(ctx, conv)
	}

	var updated *store.Conversation
	key := store.ConversationKey(conv.AgentID, conv.ID) + "-update"
	err := lock.With(ctx, s.locker, key, func() error {
		var err error
		updated, err = s.conversations.UpdateConversation(ctx, conv)
		return err
	})
	return updated, err
}

// internal logs err with context and returns the classified failure.
func (s *Service) internal(ctx context.Context, msg string, err error, args ...any) *Error {
	s.logger.ErrorContext(ctx, msg, append(args, "error", err)...)
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

func (s *Service) newTurn(conv *store.Conversation, ag *store.Agent, release func()) *Turn {
	return &Turn{
		svc:      s,
		conv:     conv,
		agent:    ag,
		strategy: s.strategies.Resolve(ag.Type),
		release:  release,
	}
}

// Turn is a conversation whose latest user message awaits a reply.
// Call Reply or Stream once; call Abort if neither will run.
type Turn struct {
	svc      *Service
	conv     *store.Conversation
	agent    *store.Agent
	strategy agent.Strategy
	release  func()
	once     sync.Once
}

// ConversationID returns the id of the conversation.
func (t *Turn) ConversationID() string {
	return t.conv.ID
}

// Conversation returns a copy of the conversation as last persisted.
func (t *Turn) Conversation() *store.Conversation {
	return t.conv.Clone()
}

// Abort releases anything the turn holds without producing a reply.
func (t *Turn) Abort() {
	t.finish()
}

func (t *Turn) finish() {
	t.once.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}

func (t *Turn) request() agent.Request {
	return agent.Request{
		Persona:  t.agent.Persona,
		Messages: append([]store.Message(nil), t.conv.Messages...),
	}
}

// Reply runs the strategy to completion and persists the answer.
func (t *Turn) Reply(ctx context.Context) (*store.Message, error) {
	defer t.finish()

	msg, err := t.strategy.Reply(ctx, t.request())
	if err != nil {
		metrics.ReplyFailures.WithLabelValues(t.strategy.Name(), metrics.ModeBatch).Inc()
		return nil, t.svc.internal(ctx, "Unable to generate reply", err,
			"conversation_id", t.conv.ID, "strategy", t.strategy.Name())
	}
	return t.commit(ctx, msg, metrics.ModeBatch)
}

// Stream runs the strategy, forwarding chunks to sink as they are produced,
// and persists the answer once the stream completes. If sink fails the
// strategy is cancelled and nothing further is persisted.
func (t *Turn) Stream(ctx context.Context, sink ChunkSink) (*store.Message, error) {
	defer t.finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := t.strategy.ReplyStream(ctx, t.request())

	var sinkErr error
	for chunk := range s.Chunks() {
		if sinkErr != nil {
			continue
		}
		if err := sink.Chunk(chunk); err != nil {
			sinkErr = err
			cancel()
		}
	}
	msg, err := s.Result()

	if sinkErr != nil {
		metrics.ReplyFailures.WithLabelValues(t.strategy.Name(), metrics.ModeStream).Inc()
		t.svc.logger.Warn("stream consumer went away",
			"conversation_id", t.conv.ID, "error", sinkErr)
		return nil, &Error{Kind: KindInternal, Message: "Unable to generate reply", Err: sinkErr}
	}
	if err != nil {
		metrics.ReplyFailures.WithLabelValues(t.strategy.Name(), metrics.ModeStream).Inc()
		return nil, t.svc.internal(ctx, "Unable to generate reply", err,
			"conversation_id", t.conv.ID, "strategy", t.strategy.Name())
	}

	// The reply is complete; persist it even if the caller's context ends now.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	return t.commit(persistCtx, msg, metrics.ModeStream)
}

func (t *Turn) commit(ctx context.Context, msg *store.Message, mode string) (*store.Message, error) {
	conv := t.conv.Clone()
	conv.Messages = append(conv.Messages, *msg)

	updated, err := t.svc.persist(ctx, conv)
	if err != nil {
		metrics.ReplyFailures.WithLabelValues(t.strategy.Name(), mode).Inc()
		return nil, t.svc.internal(ctx, "Unable to update conversation", err, "conversation_id", conv.ID)
	}

	t.conv = updated
	metrics.RepliesTotal.WithLabelValues(t.strategy.Name(), mode).Inc()
	t.svc.logger.Debug("reply persisted",
		"conversation_id", conv.ID,
		"strategy", t.strategy.Name(),
		"mode", mode,
		"messages", len(updated.Messages))
	return msg, nil
}
