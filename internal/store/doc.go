// Package store persists agents and conversations.
//
// # Architecture
//
// Two narrow interfaces describe what the rest of the gateway needs:
//
//   - AgentStore: agents keyed by a sequential integer id, unique by slug
//   - ConversationStore: conversations stored and replaced as whole documents
//
// Store combines both with Ping and Close. Every backend implements Store:
//
//   - SQLiteStore: modernc.org/sqlite, the default
//   - RedisStore: go-redis, keys agent:<id>:<slug> and conversation:<agentId>:<id>
//   - MongoStore: mongo-driver, with a counters collection for agent ids
//   - MockStore: in-memory, used by tests and the memory backend
//
// # Semantics
//
// Writes are last-writer-wins. UpdateConversation refreshes UpdatedAt and never
// moves it before CreatedAt. Lookups of absent records return ErrNotFound.
// Agent names are compared by slug (see Slugify), so "Echo Bot" and "echo-bot"
// collide.
//
// # Identifiers
//
// Conversation and message ids are 21-character URL-safe nanoids (NewID).
package store
