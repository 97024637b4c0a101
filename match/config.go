package match

import (
	"fmt"
	"time"

	"othello/bot"
	"othello/game"
)

// PlayerKind says who drives a seat.
type PlayerKind string

const (
	Human PlayerKind = "human"
	Bot   PlayerKind = "bot"
)

// Config describes a new match. Immutable once the match starts.
type Config struct {
	BoardSize       int        `json:"board_size"`
	BlackPlayerType PlayerKind `json:"black_player_type"`
	BlackBotName    string     `json:"black_bot_name,omitempty"`
	WhitePlayerType PlayerKind `json:"white_player_type"`
	WhiteBotName    string     `json:"white_bot_name,omitempty"`

	// Deadlines in seconds; zero means the defaults (60s init, 2s per move).
	InitTimeout float64 `json:"init_timeout,omitempty"`
	MoveTimeout float64 `json:"move_timeout,omitempty"`
}

// Validate checks board bounds and player-kind/bot-name coherence.
func (c Config) Validate() error {
	if c.BoardSize < game.MinBoardSize || c.BoardSize > game.MaxBoardSize {
		return fmt.Errorf("board size must be between %d and %d, got %d",
			game.MinBoardSize, game.MaxBoardSize, c.BoardSize)
	}
	if c.BoardSize%2 != 0 {
		return fmt.Errorf("board size must be even, got %d", c.BoardSize)
	}
	for _, seat := range []struct {
		side game.Cell
		kind PlayerKind
		bot  string
	}{
		{game.Black, c.BlackPlayerType, c.BlackBotName},
		{game.White, c.WhitePlayerType, c.WhiteBotName},
	} {
		switch seat.kind {
		case Human:
			if seat.bot != "" {
				return fmt.Errorf("%s seat is human but names bot %q", seat.side, seat.bot)
			}
		case Bot:
			if seat.bot == "" {
				return fmt.Errorf("%s seat is a bot but no bot name was given", seat.side)
			}
		default:
			return fmt.Errorf("%s seat has unknown player type %q", seat.side, seat.kind)
		}
	}
	if c.InitTimeout < 0 || c.MoveTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func (c Config) initTimeout() time.Duration {
	if c.InitTimeout <= 0 {
		return bot.DefaultInitTimeout
	}
	return time.Duration(c.InitTimeout * float64(time.Second))
}

func (c Config) moveTimeout() time.Duration {
	if c.MoveTimeout <= 0 {
		return bot.DefaultMoveTimeout
	}
	return time.Duration(c.MoveTimeout * float64(time.Second))
}

func (c Config) seatKind(side game.Cell) PlayerKind {
	if side == game.Black {
		return c.BlackPlayerType
	}
	return c.WhitePlayerType
}

func (c Config) seatBot(side game.Cell) string {
	if side == game.Black {
		return c.BlackBotName
	}
	return c.WhiteBotName
}
