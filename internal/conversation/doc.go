// Package conversation orchestrates conversation turns between users and agents.
//
// # Turns
//
// A request either starts or continues a conversation:
//
//   - Begin: validate, resolve the agent, persist a conversation seeded with
//     the opening user message
//   - Continue: validate, load the conversation and its agent, append and
//     persist the new user message
//
// Both return a Turn. Turn.Reply produces the whole answer; Turn.Stream
// forwards chunks to a ChunkSink while they are produced. Either way the
// assistant message is appended and persisted only after the strategy
// finished successfully. The user message is already durable by then, so a
// failed or abandoned reply leaves the conversation awaiting an answer.
//
// Create, SendMessage and GetConversation wrap these for batch callers.
//
// # Concurrency
//
// Stores are last-writer-wins. WithLocker adds an advisory lock:
//
//   - LockWrite: each conversation write holds conversation:<agentId>:<id>-update
//   - LockTurn: a whole Continue turn holds conversation:<id>-turn, so
//     concurrent messages to one conversation are answered one at a time
//
// # Errors
//
// Every failure leaving this package is an *Error with a Kind (bad request,
// not found, internal) and a message that is safe to return to clients.
// Internal failures are logged here, with context, before they are returned.
//
// # Agents
//
// AgentService lists, creates, fetches and updates agents. Names are unique by
// slug, so a second "Echo Bot" or "echo-bot" is rejected as a bad request.
package conversation
