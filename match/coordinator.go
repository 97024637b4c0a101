package match

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"othello/bot"
	"othello/game"
)

var (
	ErrGameOver     = errors.New("game is over")
	ErrPaused       = errors.New("match is paused")
	ErrNotHumanTurn = errors.New("not a human seat's turn")
)

type seat struct {
	kind    PlayerKind
	botName string
	inst    *bot.Instance
}

// Coordinator is the per-match state machine. It exclusively owns its match
// state and serializes every mutation behind one mutex; everything handed
// out is a snapshot copy. Bot turns are driven by an internal loop goroutine
// so that a human move, a pause toggle and bot progression never interleave
// destructively.
type Coordinator struct {
	ID  string
	cfg Config

	mu          sync.Mutex
	board       game.Board
	current     game.Cell
	status      Status
	resume      Status
	winner      game.Winner
	fault       bot.Fault
	message     string
	lastMove    *game.Move
	lastFlipped []game.Move
	thinkMS     int64
	version     uint64
	seats       [2]*seat
	subs        map[chan State]struct{}

	kick      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

// New validates the config, seeds the board and constructs bot instances
// under the initialization deadline. A bot that fails or times out during
// construction forfeits: the match is created already finished with the
// opponent as winner.
func New(id string, cfg Config, catalog *bot.Catalog) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	board, err := game.NewBoard(cfg.BoardSize)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		ID:      id,
		cfg:     cfg,
		board:   board,
		current: game.Black,
		status:  AwaitingFirstMove,
		resume:  AwaitingFirstMove,
		winner:  game.WinnerDraw,
		subs:    make(map[chan State]struct{}),
		kick:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}

	for _, side := range []game.Cell{game.Black, game.White} {
		s := &seat{kind: cfg.seatKind(side), botName: cfg.seatBot(side)}
		c.seats[side] = s
		if s.kind != Bot {
			continue
		}
		source, err := catalog.Source(s.botName)
		if err != nil {
			return nil, err
		}
		if c.status == GameOver {
			// The other seat already forfeited during construction.
			continue
		}
		inst, fault, ierr := bot.NewInstance(s.botName, source, side, side.Opponent(), cfg.initTimeout())
		if fault != bot.FaultNone {
			log.Warn().Str("match", id).Str("bot", s.botName).Err(ierr).Msg("bot forfeits at initialization")
			c.status = GameOver
			c.winner = game.Winner(side.Opponent())
			c.fault = fault
			c.message = ierr.Error()
			continue
		}
		s.inst = inst
	}

	if c.seats[game.Black].kind == Bot || c.seats[game.White].kind == Bot {
		go c.loop()
		c.wake()
	}
	log.Info().Str("match", id).Int("board_size", cfg.BoardSize).Msg("match created")
	return c, nil
}

// PlayMove applies a human move for the side to move. The match state is
// unchanged on error.
func (c *Coordinator) PlayMove(row, col int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case GameOver:
		return ErrGameOver
	case Paused:
		return ErrPaused
	}
	if c.seats[c.current].kind != Human {
		return fmt.Errorf("%w: %s is played by bot %q", ErrNotHumanTurn, c.current, c.seats[c.current].botName)
	}

	mv := game.Move{Row: row, Col: col}
	flipped, err := game.ApplyMove(&c.board, c.current, mv)
	if err != nil {
		return err
	}

	side := c.current
	c.message = ""
	c.lastMove = &mv
	c.lastFlipped = flipped
	c.advanceTurnLocked(side)
	c.version++
	c.publishLocked()
	c.wake()
	return nil
}

// AdvanceBotTurn runs one bot move when the side to move is a bot and the
// match is running. It reports whether another bot turn immediately follows.
// The bot is invoked outside the match lock so a pause or snapshot is never
// held hostage by a thinking bot; a result that arrives after the state
// moved on is discarded.
func (c *Coordinator) AdvanceBotTurn() bool {
	c.mu.Lock()
	if c.status != AwaitingFirstMove && c.status != InProgress {
		c.mu.Unlock()
		return false
	}
	s := c.seats[c.current]
	if s.kind != Bot || s.inst == nil {
		c.mu.Unlock()
		return false
	}
	side := c.current
	boardCopy := c.board.Copy()
	legal := game.ValidMoves(boardCopy, side)
	ver := c.version
	inst := s.inst
	timeout := c.cfg.moveTimeout()
	c.mu.Unlock()

	mv, thinkTime, fault, err := inst.SelectMove(boardCopy, legal, timeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != ver || (c.status != AwaitingFirstMove && c.status != InProgress) {
		return false
	}
	c.thinkMS = thinkTime.Milliseconds()

	var flipped []game.Move
	if fault == bot.FaultNone {
		flipped, err = game.ApplyMove(&c.board, side, mv)
		if err != nil {
			fault = bot.FaultInvalidMove
		}
	}
	if fault != bot.FaultNone {
		log.Warn().Str("match", c.ID).Str("bot", s.botName).Stringer("fault", fault).Err(err).Msg("bot forfeits")
		c.status = GameOver
		c.winner = game.Winner(side.Opponent())
		c.fault = fault
		c.message = err.Error()
		c.version++
		c.publishLocked()
		return false
	}

	c.message = ""
	c.lastMove = &mv
	c.lastFlipped = flipped
	c.advanceTurnLocked(side)
	c.version++
	c.publishLocked()
	return c.status != GameOver && c.status != Paused && c.seats[c.current].kind == Bot
}

// TogglePause flips the match between running and paused and returns the
// new paused flag. Finished matches are left alone. Pausing cancels no
// in-flight bot call; its result is discarded and recomputed on resume.
func (c *Coordinator) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case GameOver:
		return false
	case Paused:
		c.status = c.resume
		c.version++
		c.publishLocked()
		c.wake()
		return false
	default:
		c.resume = c.status
		c.status = Paused
		c.version++
		c.publishLocked()
		return true
	}
}

// Snapshot returns a copy of the current match state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers a channel receiving a snapshot after every state
// change. A subscriber that falls behind loses intermediate snapshots but
// always receives the most recent one, so a terminal state is never missed.
func (c *Coordinator) Subscribe() chan State {
	ch := make(chan State, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (c *Coordinator) Unsubscribe(ch chan State) {
	c.mu.Lock()
	delete(c.subs, ch)
	c.mu.Unlock()
}

// Close stops the bot loop and releases bot interpreters. Idempotent.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		hasBot := c.seats[game.Black].kind == Bot || c.seats[game.White].kind == Bot
		c.version++
		if c.status != GameOver {
			c.status = GameOver
			c.winner = game.WinnerDraw
			c.message = "Match discarded"
			c.publishLocked()
		}
		c.mu.Unlock()
		close(c.quit)
		if !hasBot {
			c.closeInstances()
		}
	})
}

// loop drives bot turns. It owns the bot instances' teardown so an LState is
// never closed while a call is in flight.
func (c *Coordinator) loop() {
	defer c.closeInstances()
	for {
		select {
		case <-c.quit:
			return
		case <-c.kick:
		}
		for c.AdvanceBotTurn() {
			select {
			case <-c.quit:
				return
			default:
			}
		}
	}
}

func (c *Coordinator) closeInstances() {
	for _, s := range c.seats {
		if s != nil && s.inst != nil {
			s.inst.Close()
		}
	}
}

// wake schedules a bot-loop pass. Never blocks.
func (c *Coordinator) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// advanceTurnLocked hands the turn to the opponent of the side that just
// moved, silently passing back when the opponent has no legal move, and
// finishes the game when neither side can move or the board is full.
func (c *Coordinator) advanceTurnLocked(justMoved game.Cell) {
	if over, w := game.GameOver(c.board); over {
		c.finishLocked(w)
		return
	}
	c.status = InProgress
	c.current = justMoved.Opponent()
	if !game.HasMoves(c.board, c.current) {
		skipped := c.current
		c.current = justMoved
		if !game.HasMoves(c.board, c.current) {
			_, w := game.GameOver(c.board)
			c.finishLocked(w)
			return
		}
		c.message = fmt.Sprintf("%s has no valid moves. Turn passes to %s.", skipped, c.current)
	}
}

func (c *Coordinator) finishLocked(w game.Winner) {
	c.status = GameOver
	c.winner = w
	if w == game.WinnerDraw {
		c.message = "Game ended in a draw"
	} else {
		c.message = fmt.Sprintf("%s wins!", w)
	}
}

func (c *Coordinator) snapshotLocked() State {
	board := c.board.Copy()
	black, white := board.Counts()

	st := State{
		Board:         board.Cells,
		CurrentPlayer: c.current,
		BlackCount:    black,
		WhiteCount:    white,
		ValidMoves:    [][2]int{},
		GameOver:      c.status == GameOver,
		Paused:        c.status == Paused,
		LastFlipped:   movePairs(c.lastFlipped),
		StablePieces:  movePairs(game.StablePieces(board)),
		BotThinkingMS: c.thinkMS,
		Message:       c.message,
		Fault:         c.fault,
	}
	if c.status == GameOver {
		w := c.winner
		st.Winner = &w
	} else {
		st.ValidMoves = movePairs(game.ValidMoves(board, c.current))
	}
	if c.lastMove != nil {
		st.LastMove = &[2]int{c.lastMove.Row, c.lastMove.Col}
	}
	return st
}

func (c *Coordinator) publishLocked() {
	st := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case ch <- st:
		default:
			// Full buffer: evict the oldest snapshot so the latest one,
			// which may be the terminal GameOver state, always lands.
			// Sends are serialized under c.mu and receivers only free
			// slots, so after the eviction this send cannot block.
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}
