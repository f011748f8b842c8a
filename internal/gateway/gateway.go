// ABOUTME: Gateway orchestrator that wires the store, strategies and conversation services
// ABOUTME: Owns the HTTP server lifecycle, optional tailnet listeners and health endpoints

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/lock"
	"github.com/2389/parley/internal/store"
)

// Gateway serves the agent and conversation HTTP API.
type Gateway struct {
	config        *config.Config
	store         store.Store
	strategies    *agent.Registry
	conversations *conversation.Service
	agents        *conversation.AgentService
	requestKeys   *dedupe.Keys // nil when idempotency keys are disabled
	httpServer    *http.Server
	tsnetServer   *tsnet.Server
	logger        *slog.Logger
}

// New creates a gateway from cfg: it opens the configured store, builds the
// strategy registry, seeds configured agents and prepares the HTTP server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, locker, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	gw, err := newGateway(ctx, cfg, s, locker, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return gw, nil
}

// openStore opens the configured backend and returns the locker guarding
// conversation writes. Redis shares its client with the lock so that several
// gateway processes serialize on the same keys.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, lock.Locker, error) {
	opts := lockOptions(cfg.Conversations.Lock)

	switch cfg.Database.Backend {
	case config.BackendRedis:
		rs, err := store.NewRedisStore(ctx, cfg.Database.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return rs, lock.NewRedisLocker(rs.Client(), opts), nil
	case config.BackendMongo:
		ms, err := store.NewMongoStore(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return ms, lock.NewLocalLocker(opts), nil
	case config.BackendMemory:
		return store.NewMockStore(), lock.NewLocalLocker(opts), nil
	case config.BackendSQLite, "":
		ss, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return ss, lock.NewLocalLocker(opts), nil
	default:
		return nil, nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}

func lockOptions(cfg config.LockConfig) lock.Options {
	return lock.Options{
		Attempts:   cfg.Attempts,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.Timeout,
		TTL:        cfg.TTL,
	}
}

// newGateway wires an already opened store into a gateway.
func newGateway(ctx context.Context, cfg *config.Config, s store.Store, locker lock.Locker, logger *slog.Logger) (*Gateway, error) {
	scope, err := conversation.ParseLockScope(cfg.Conversations.Lock.Scope)
	if err != nil {
		return nil, err
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	strategies := agent.NewDefaultRegistry(agent.NewEcho(cfg.Agents.EchoDelay), completer)

	gw := &Gateway{
		config:        cfg,
		store:         s,
		strategies:    strategies,
		conversations: conversation.New(s, s, strategies, logger, conversation.WithLocker(locker, scope)),
		agents:        conversation.NewAgentService(s, logger),
		logger:        logger.With("component", "gateway"),
	}

	if ttl := cfg.Conversations.IdempotencyTTL; ttl > 0 {
		gw.requestKeys = dedupe.NewKeys(ttl, cfg.Conversations.IdempotencyKeys)
	}

	if err := gw.agents.Seed(ctx, seedRequests(cfg.Agents.Seed)); err != nil {
		return nil, fmt.Errorf("seeding agents: %w", err)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway ready",
		"backend", cfg.Database.Backend,
		"lock_scope", string(scope),
		"strategies", strategies.Tags(),
	)
	return gw, nil
}

func seedRequests(seeds []config.SeedAgent) []conversation.AgentRequest {
	reqs := make([]conversation.AgentRequest, 0, len(seeds))
	for _, s := range seeds {
		reqs = append(reqs, conversation.AgentRequest{Name: s.Name, Persona: s.Persona, Type: s.Type})
	}
	return reqs
}

// Handler returns the HTTP handler serving the API.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListener creates the standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context since the caller's is already done.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "parley-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet as its own node and listens on :80
// there. The node is closed again if it never gets a listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	ts := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(ts.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(ts.AuthKey)
	if err != nil {
		return nil, err
	}

	node := &tsnet.Server{Hostname: ts.Hostname, Dir: stateDir, Ephemeral: ts.Ephemeral, AuthKey: authKey}
	g.logger.Info("joining tailnet", "hostname", ts.Hostname, "state_dir", stateDir, "ephemeral", ts.Ephemeral)

	status, err := node.Up(ctx)
	if err == nil {
		var ln net.Listener
		if ln, err = node.Listen("tcp", ":80"); err == nil {
			g.tsnetServer = node
			g.logger.Info("tailnet node ready", "addrs", status.TailscaleIPs, "hostname", ts.Hostname)
			return ln, nil
		}
	}
	_ = node.Close()
	return nil, fmt.Errorf("tailnet listener: %w", err)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, waiting for in-flight streams until ctx
// expires, then releases the tailnet node and the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", g.config.Database.Backend)
}
