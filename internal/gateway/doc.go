// Package gateway serves the parley HTTP API.
//
// # Routes
//
//   - GET /agents, POST /agents, GET /agents/{id}, PUT /agents/{id}
//   - POST /conversations: start a conversation, answer {conversationId, answer}
//   - POST /conversations/stream: same, streamed as NDJSON
//   - GET /conversations/{id}
//   - POST /conversations/{id}/messages: continue, answer the whole conversation
//   - POST /conversations/{id}/messages/stream: same, streamed as NDJSON
//   - GET /health, GET /health/ready
//   - metrics.path (default /metrics) when metrics are enabled
//
// Errors are JSON objects {"error": "..."} with status 400, 404 or 500.
//
// # Streaming
//
// Streaming responses are application/x-ndjson, one record per line:
//
//	{"type":"chunk","content":"Echo: "}
//	{"type":"chunk","content":"hi"}
//	{"type":"complete","message":{"id":"...","role":"assistant","content":"Echo: hi","createdAt":"..."}}
//
// A failed reply ends with {"type":"error","error":"unable to generate reply"}
// instead of a complete record. The conversation id is sent in the
// X-Conversation-Id header before the first record.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled, then shuts down
//
// When tailscale is enabled the API listens on the tailnet node instead of
// server.http_addr.
package gateway
