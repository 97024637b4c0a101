package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"othello/bot"
	"othello/match"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway upgrades websocket connections and translates between the wire
// vocabulary and the match registry.
type Gateway struct {
	registry *match.Registry
}

func NewGateway(registry *match.Registry) *Gateway {
	return &Gateway{registry: registry}
}

// client is one websocket connection. All writes to the socket go through
// the send channel so the write pump is the sole writer.
type client struct {
	gw   *Gateway
	id   string
	conn *websocket.Conn
	send chan Outbound

	mu   sync.Mutex
	subs map[string]*subscription
	done chan struct{}
}

// subscription forwards one match's snapshots to the client.
type subscription struct {
	matchID string
	updates chan match.State
	stop    chan struct{}
}

// ServeWS handles a websocket request for the client named in the path.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("client", clientID).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		gw:   g,
		id:   clientID,
		conn: conn,
		send: make(chan Outbound, sendBuffer),
		subs: make(map[string]*subscription),
		done: make(chan struct{}),
	}
	log.Info().Str("client", clientID).Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer c.teardown()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push(errorMsg("", "malformed message"))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push queues a message for the write pump, dropping it if the client's
// buffer is full and the connection has not yet torn down.
func (c *client) push(msg Outbound) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		log.Warn().Str("client", c.id).Str("type", msg.Type).Msg("send buffer full, dropping message")
	}
}

func (c *client) dispatch(msg Inbound) {
	switch msg.Type {
	case MsgCreateMatch:
		c.handleCreate(msg)
	case MsgPlayMove:
		c.handlePlayMove(msg)
	case MsgTogglePause:
		c.handleTogglePause(msg)
	case MsgGetState:
		c.handleGetState(msg)
	default:
		c.push(errorMsg(msg.MatchID, "unknown message type: "+msg.Type))
	}
}

func (c *client) handleCreate(msg Inbound) {
	if msg.Config == nil {
		c.push(errorMsg("", "create_match requires a config"))
		return
	}
	coord, err := c.gw.registry.Create(*msg.Config)
	if err != nil {
		c.push(errorMsg("", err.Error()))
		return
	}
	c.subscribe(coord)
	c.push(stateMsg(MsgMatchCreated, coord.ID, coord.Snapshot()))
}

func (c *client) handlePlayMove(msg Inbound) {
	coord, err := c.gw.registry.Get(msg.MatchID)
	if err != nil {
		c.push(errorMsg(msg.MatchID, err.Error()))
		return
	}
	if msg.Row == nil || msg.Col == nil {
		c.push(errorMsg(msg.MatchID, "play_move requires row and col"))
		return
	}
	if err := coord.PlayMove(*msg.Row, *msg.Col); err != nil {
		c.push(errorMsg(msg.MatchID, err.Error()))
		return
	}
	// The acknowledgement echoes the coordinates; the updated board follows
	// as a game_state broadcast to every subscriber.
	c.push(Outbound{Type: MsgMovePlayed, MatchID: coord.ID, Row: msg.Row, Col: msg.Col})
}

func (c *client) handleTogglePause(msg Inbound) {
	coord, err := c.gw.registry.Get(msg.MatchID)
	if err != nil {
		c.push(errorMsg(msg.MatchID, err.Error()))
		return
	}
	coord.TogglePause()
	c.push(stateMsg(MsgGameState, coord.ID, coord.Snapshot()))
}

// handleGetState reattaches a client to a running match: it returns the
// current snapshot and ensures a live subscription, so a reconnecting client
// resumes receiving updates.
func (c *client) handleGetState(msg Inbound) {
	coord, err := c.gw.registry.Get(msg.MatchID)
	if err != nil {
		c.push(errorMsg(msg.MatchID, err.Error()))
		return
	}
	c.subscribe(coord)
	c.push(stateMsg(MsgGameState, coord.ID, coord.Snapshot()))
}

// subscribe starts forwarding a match's snapshots to this client. A second
// subscription to the same match is a no-op.
func (c *client) subscribe(coord *match.Coordinator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[coord.ID]; ok {
		return
	}
	sub := &subscription{
		matchID: coord.ID,
		updates: coord.Subscribe(),
		stop:    make(chan struct{}),
	}
	c.subs[coord.ID] = sub
	go c.forward(coord, sub)
}

// forward relays snapshots until the match ends or the client goes away.
// The terminal snapshot additionally produces a match_end message, plus a
// bot_error when the match ended on a bot fault.
func (c *client) forward(coord *match.Coordinator, sub *subscription) {
	defer coord.Unsubscribe(sub.updates)

	// The match may already be over, either because a bot forfeited during
	// construction or because it finished before this subscription landed.
	if st := coord.Snapshot(); st.GameOver {
		c.finishMatch(sub.matchID, st)
		return
	}

	for {
		select {
		case <-c.done:
			return
		case <-sub.stop:
			return
		case st := <-sub.updates:
			c.push(stateMsg(MsgGameState, sub.matchID, st))
			if st.GameOver {
				c.finishMatch(sub.matchID, st)
				return
			}
		}
	}
}

// finishMatch emits the terminal messages for a finished match: a bot_error
// when the game ended on a bot fault, then the match_end verdict.
func (c *client) finishMatch(matchID string, st match.State) {
	if st.Fault != bot.FaultNone {
		c.push(Outbound{
			Type:    MsgBotError,
			MatchID: matchID,
			Fault:   st.Fault.String(),
			Message: st.Message,
		})
	}
	c.push(Outbound{
		Type:    MsgMatchEnd,
		MatchID: matchID,
		Winner:  st.Winner,
		Message: st.Message,
	})
}

func (c *client) teardown() {
	close(c.done)
	c.mu.Lock()
	for _, sub := range c.subs {
		close(sub.stop)
	}
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()
	log.Info().Str("client", c.id).Msg("client disconnected")
}
