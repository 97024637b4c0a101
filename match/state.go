package match

import (
	"othello/bot"
	"othello/game"
)

// Status is the coordinator's position in its lifecycle.
type Status int

const (
	AwaitingFirstMove Status = iota
	InProgress
	Paused
	GameOver
)

func (s Status) String() string {
	switch s {
	case AwaitingFirstMove:
		return "awaiting_first_move"
	case InProgress:
		return "in_progress"
	case Paused:
		return "paused"
	default:
		return "game_over"
	}
}

// State is an immutable snapshot of a match, shaped for the wire.
type State struct {
	Board         [][]game.Cell `json:"board"`
	CurrentPlayer game.Cell     `json:"current_player"`
	BlackCount    int           `json:"black_count"`
	WhiteCount    int           `json:"white_count"`
	ValidMoves    [][2]int      `json:"valid_moves"`
	GameOver      bool          `json:"game_over"`
	Winner        *game.Winner  `json:"winner"`
	Paused        bool          `json:"paused"`
	LastMove      *[2]int       `json:"last_move"`
	LastFlipped   [][2]int      `json:"last_flipped"`
	StablePieces  [][2]int      `json:"stable_pieces"`
	BotThinkingMS int64         `json:"bot_thinking_time_ms"`
	Message       string        `json:"message,omitempty"`

	// Fault is set when the game ended through a bot fault. Diagnostic only,
	// not part of the wire state.
	Fault bot.Fault `json:"-"`
}

func movePairs(moves []game.Move) [][2]int {
	out := make([][2]int, len(moves))
	for i, m := range moves {
		out[i] = [2]int{m.Row, m.Col}
	}
	return out
}
