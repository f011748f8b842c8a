// ABOUTME: Rock-paper-scissors strategy that models the opponent from history
// ABOUTME: Moves are read from text or emoji and answered with emoji

package agent

import (
	"context"
	"strings"

	"github.com/2389/parley/internal/store"
)

// Move is a rock-paper-scissors symbol.
type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

// Emoji renders each move.
var moveEmoji = map[Move]string{
	Rock:     "🪨",
	Paper:    "📄",
	Scissors: "✂️",
}

// beatenBy maps a move to the move that beats it. The same cycle orders
// rock -> paper -> scissors -> rock for the "next move" rule.
var beatenBy = map[Move]Move{
	Rock:     Paper,
	Paper:    Scissors,
	Scissors: Rock,
}

// ClarificationText is the reply to an unrecognized move.
const ClarificationText = "I don't understand your move. Please use rock, paper, or scissors or 🪨, 📄, ✂️"

// Emoji returns the glyph for m.
func (m Move) Emoji() string { return moveEmoji[m] }

// Beater returns the move that beats m.
func (m Move) Beater() Move { return beatenBy[m] }

// Next returns the move after m in the rock, paper, scissors cycle.
func (m Move) Next() Move { return beatenBy[m] }

// ParseMove reads a move from free text: the lowercased word, or the exact emoji.
func ParseMove(content string) (Move, bool) {
	lower := strings.ToLower(content)
	for _, m := range []Move{Rock, Paper, Scissors} {
		if lower == string(m) || content == m.Emoji() {
			return m, true
		}
	}
	return "", false
}

// beats reports whether a wins against b.
func beats(a, b Move) bool {
	return beatenBy[b] == a
}

// RPS plays rock-paper-scissors against the user.
type RPS struct{}

// NewRPS creates the strategy.
func NewRPS() *RPS { return &RPS{} }

// Name implements Strategy.
func (r *RPS) Name() string { return TypeRPS }

// Reply implements Strategy.
func (r *RPS) Reply(ctx context.Context, req Request) (*store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg := store.NewMessage(store.RoleAssistant, r.answer(req.Messages))
	return &msg, nil
}

// ReplyStream implements Strategy with a single chunk.
func (r *RPS) ReplyStream(ctx context.Context, req Request) *Stream {
	return Single(ctx, func(ctx context.Context) (*store.Message, error) {
		return r.Reply(ctx, req)
	})
}

func (r *RPS) answer(messages []store.Message) string {
	if len(messages) == 0 {
		return ClarificationText
	}
	current := messages[len(messages)-1]
	if current.Role != store.RoleUser {
		return ClarificationText
	}
	if _, ok := ParseMove(current.Content); !ok {
		return ClarificationText
	}
	return ChooseMove(messages[:len(messages)-1]).Emoji()
}

// ChooseMove picks a move from the history preceding the current user move.
//
// Rules, first match wins:
//  1. no earlier user move: paper
//  2. the user repeated a move twice: beat it
//  3. the user won the last round: beat what the user played
//  4. the user lost the last round: beat the user's next move in the cycle
//  5. otherwise: beat the user's last move
func ChooseMove(history []store.Message) Move {
	var userMoves, assistantMoves []Move
	for _, m := range history {
		move, ok := ParseMove(m.Content)
		if !ok {
			continue
		}
		switch m.Role {
		case store.RoleUser:
			userMoves = append(userMoves, move)
		case store.RoleAssistant:
			assistantMoves = append(assistantMoves, move)
		}
	}

	if len(userMoves) == 0 {
		return Paper
	}

	lastUser := userMoves[len(userMoves)-1]
	if n := len(userMoves); n >= 2 && userMoves[n-2] == lastUser {
		return lastUser.Beater()
	}

	if len(assistantMoves) > 0 {
		lastAssistant := assistantMoves[len(assistantMoves)-1]
		if beats(lastUser, lastAssistant) {
			return lastUser.Beater()
		}
		if beats(lastAssistant, lastUser) {
			return lastUser.Next().Beater()
		}
	}

	return lastUser.Beater()
}
