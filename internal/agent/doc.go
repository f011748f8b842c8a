// Package agent implements the reply strategies agents are built on.
//
// # Strategies
//
// Every strategy exposes the same two operations:
//
//   - Reply(ctx, req): the whole assistant message
//   - ReplyStream(ctx, req): a Stream of text chunks ending in that message
//
// Built-in strategies:
//
//   - Echo ("echo"): "Echo: " plus the last user message, after a configurable delay
//   - RPS ("rps"): rock-paper-scissors with a deterministic opponent model
//   - Remote ("llm", "openai", "gemini"): an llm.Completer, or Echo when none is configured
//
// # Registry
//
// Registry.Resolve maps an agent's type tag to a Strategy. It never fails:
// unknown and empty tags resolve to Echo.
//
// # Streams
//
// A Stream separates intermediate chunks from the final message:
//
//	s := strategy.ReplyStream(ctx, req)
//	for chunk := range s.Chunks() {
//	    // forward chunk
//	}
//	msg, err := s.Result()
//
// Chunks is unbuffered, so the producer runs no further ahead than the
// consumer. Cancelling ctx abandons the stream; Result then returns the
// context error and no message. The concatenated chunks always equal the
// final message content.
//
// # Rock-paper-scissors
//
// ChooseMove rebuilds both players' move histories from the conversation on
// every call and applies a fixed rule cascade (see its documentation). The
// move being answered is never part of the decision.
package agent
