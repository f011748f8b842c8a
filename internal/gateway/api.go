// ABOUTME: HTTP API for agents and conversations, batch JSON and NDJSON streaming
// ABOUTME: Service error kinds map to 400, 404 and 500 with an {"error": ...} body

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/stream"
)

// HeaderConversationID carries the id of a conversation created by a streaming request.
const HeaderConversationID = "X-Conversation-Id"

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(metricsMiddleware)
	r.Use(requestLogger(g.logger))
	r.Use(chimw.Recoverer)
	r.Use(maxBodySize(maxBodyBytes))

	origins := g.config.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id", HeaderIdempotencyKey},
		ExposedHeaders:   []string{HeaderConversationID, "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		r.Handle(g.config.Metrics.Path, promhttp.Handler())
	}

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", g.handleListAgents)
		r.Post("/", g.handleCreateAgent)
		r.Get("/{id}", g.handleGetAgent)
		r.Put("/{id}", g.handleUpdateAgent)
	})

	r.Route("/conversations", func(r chi.Router) {
		if g.requestKeys != nil {
			r.Use(idempotent(g.requestKeys))
		}
		r.Post("/", g.handleCreateConversation)
		r.Post("/stream", g.handleCreateConversationStream)
		r.Get("/{id}", g.handleGetConversation)
		r.Post("/{id}/messages", g.handleSendMessage)
		r.Post("/{id}/messages/stream", g.handleSendMessageStream)
	})

	return r
}

// handleListAgents handles GET /agents
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := g.agents.List(r.Context())
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, agents)
}

// handleGetAgent handles GET /agents/{id}
func (g *Gateway) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	a, err := g.agents.Get(r.Context(), id)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, a)
}

// handleCreateAgent handles POST /agents
func (g *Gateway) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req conversation.AgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := g.agents.Create(r.Context(), req)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, a)
}

// handleUpdateAgent handles PUT /agents/{id}
func (g *Gateway) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	var req conversation.AgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := g.agents.Update(r.Context(), id, req)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, a)
}

// handleCreateConversation handles POST /conversations
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversation.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := g.conversations.Create(r.Context(), req)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

// handleCreateConversationStream handles POST /conversations/stream
func (g *Gateway) handleCreateConversationStream(w http.ResponseWriter, r *http.Request) {
	var req conversation.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	em, ok := g.newEmitter(w)
	if !ok {
		return
	}
	turn, err := g.conversations.Begin(r.Context(), req)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	w.Header().Set(HeaderConversationID, turn.ConversationID())
	g.serveTurn(r.Context(), em, turn)
}

// handleGetConversation handles GET /conversations/{id}
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := g.conversations.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, conv)
}

// handleSendMessage handles POST /conversations/{id}/messages
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req conversation.SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, err := g.conversations.SendMessage(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, conv)
}

// handleSendMessageStream handles POST /conversations/{id}/messages/stream
func (g *Gateway) handleSendMessageStream(w http.ResponseWriter, r *http.Request) {
	var req conversation.SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	em, ok := g.newEmitter(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	turn, err := g.conversations.Continue(r.Context(), id, req)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	w.Header().Set(HeaderConversationID, id)
	g.serveTurn(r.Context(), em, turn)
}

// newEmitter checks that w can stream before anything is persisted.
func (g *Gateway) newEmitter(w http.ResponseWriter) (*stream.Emitter, bool) {
	em, err := stream.NewEmitter(w, g.logger)
	if err != nil {
		g.logger.Error("cannot stream response", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	return em, true
}

// serveTurn streams the reply of turn. Once the stream is open failures are
// reported in-band, so errors here are only logged.
func (g *Gateway) serveTurn(ctx context.Context, em *stream.Emitter, turn *conversation.Turn) {
	// Serve skips the producer when the stream cannot be opened.
	defer turn.Abort()

	err := stream.Serve(em, func(sink *stream.Emitter) (*store.Message, error) {
		return turn.Stream(ctx, sink)
	})
	if err != nil {
		releaseRequestKey(ctx)
		g.logger.Warn("stream ended with error",
			"conversation_id", turn.ConversationID(),
			"error", err)
	}
}

func agentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		sendJSONError(w, http.StatusBadRequest, "agent id must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeJSON reads the request body into v, answering 400 when it is malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// sendServiceError maps a service failure to its status code.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch conversation.KindOf(err) {
	case conversation.KindBadRequest:
		status = http.StatusBadRequest
	case conversation.KindNotFound:
		status = http.StatusNotFound
	}
	sendJSONError(w, status, conversation.PublicMessage(err))
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, msg string) {
	sendJSON(w, status, map[string]string{"error": msg})
}
