package server

import (
	"othello/game"
	"othello/match"
)

// Inbound message types.
const (
	MsgCreateMatch = "create_match"
	MsgPlayMove    = "play_move"
	MsgTogglePause = "toggle_pause"
	MsgGetState    = "get_state"
)

// Outbound message types.
const (
	MsgMatchCreated = "match_created"
	MsgGameState    = "game_state"
	MsgMovePlayed   = "move_played"
	MsgMatchEnd     = "match_end"
	MsgError        = "error"
	MsgBotError     = "bot_error"
)

// Inbound is the envelope for every client request. Fields beyond Type are
// populated depending on the message type.
type Inbound struct {
	Type    string        `json:"type"`
	MatchID string        `json:"match_id,omitempty"`
	Config  *match.Config `json:"config,omitempty"`
	Row     *int          `json:"row,omitempty"`
	Col     *int          `json:"col,omitempty"`
}

// Outbound is the envelope for every server push.
type Outbound struct {
	Type    string       `json:"type"`
	MatchID string       `json:"match_id,omitempty"`
	State   *match.State `json:"state,omitempty"`
	Row     *int         `json:"row,omitempty"`
	Col     *int         `json:"col,omitempty"`
	Winner  *game.Winner `json:"winner,omitempty"`
	Fault   string       `json:"fault,omitempty"`
	Message string       `json:"message,omitempty"`
}

func errorMsg(matchID, msg string) Outbound {
	return Outbound{Type: MsgError, MatchID: matchID, Message: msg}
}

func stateMsg(typ, matchID string, st match.State) Outbound {
	return Outbound{Type: typ, MatchID: matchID, State: &st}
}
