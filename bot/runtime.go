package bot

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"othello/game"
)

// Fault classifies how a bot invocation went wrong. Every fault is fatal to
// the match: the offending side forfeits and is never retried.
type Fault int

const (
	FaultNone Fault = iota
	FaultInitFailed
	FaultTimeout
	FaultInvalidMove
)

func (f Fault) String() string {
	switch f {
	case FaultInitFailed:
		return "init_failed"
	case FaultTimeout:
		return "timeout"
	case FaultInvalidMove:
		return "invalid_move"
	default:
		return "none"
	}
}

const (
	DefaultInitTimeout = 60 * time.Second
	DefaultMoveTimeout = 2 * time.Second
)

// Instance is one seat's isolated bot interpreter for the lifetime of one
// match. Nothing is shared between instances, so no global state can leak
// between concurrent matches.
type Instance struct {
	name   string
	state  *lua.LState
	player lua.LValue

	mu        sync.Mutex
	closed    bool
	abandoned bool
}

// newSandbox builds an LState with only the side-effect-free standard
// libraries and the dynamic-execution primitives removed. The vetter is the
// first line of defense; this keeps the surface small even if it misses.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring", "require",
		"collectgarbage", "rawget", "rawset", "rawequal", "rawlen",
		"getmetatable", "setmetatable", "getfenv", "setfenv",
		"module", "newproxy",
	} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// NewInstance loads vetted bot source and constructs its player object with
// (myColor, oppColor) under the initialization deadline. On deadline expiry
// the interpreter is abandoned and the fault is FaultInitFailed.
func NewInstance(name, source string, myColor, oppColor game.Cell, initTimeout time.Duration) (*Instance, Fault, error) {
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}

	L := newSandbox()
	inst := &Instance{name: name, state: L}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	L.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- func() error {
			if err := L.DoString(source); err != nil {
				return err
			}
			ctor := L.GetGlobal("new")
			if ctor.Type() != lua.LTFunction {
				return fmt.Errorf("source does not define a global 'new' function")
			}
			if err := L.CallByParam(lua.P{Fn: ctor, NRet: 1, Protect: true},
				lua.LNumber(myColor), lua.LNumber(oppColor)); err != nil {
				return err
			}
			player := L.Get(-1)
			L.Pop(1)
			if player.Type() != lua.LTTable {
				return fmt.Errorf("'new' must return a player table, got %s", player.Type())
			}
			if L.GetField(player, "select_move").Type() != lua.LTFunction {
				return fmt.Errorf("player table does not define 'select_move'")
			}
			inst.player = player
			return nil
		}()
	}()

	select {
	case err := <-done:
		if err != nil {
			L.Close()
			return nil, FaultInitFailed, fmt.Errorf("bot %q failed to initialize: %w", name, err)
		}
		return inst, FaultNone, nil
	case <-ctx.Done():
		inst.abandon(done)
		return nil, FaultInitFailed, fmt.Errorf("bot %q exceeded %s initialization time limit", name, initTimeout)
	}
}

// Name returns the catalog name the instance was created from.
func (i *Instance) Name() string {
	return i.name
}

// SelectMove asks the bot for a move under a hard wall-clock deadline. The
// returned duration is the bot's thinking time. Deadline expiry abandons the
// in-flight call (its eventual result is discarded) and yields FaultTimeout;
// an error raised by the bot, a malformed return value, or a move outside
// the legal set yields FaultInvalidMove.
func (i *Instance) SelectMove(b game.Board, legal []game.Move, timeout time.Duration) (game.Move, time.Duration, Fault, error) {
	if timeout <= 0 {
		timeout = DefaultMoveTimeout
	}

	i.mu.Lock()
	if i.closed || i.abandoned {
		i.mu.Unlock()
		return game.Move{}, 0, FaultInvalidMove, fmt.Errorf("bot %q instance is no longer usable", i.name)
	}
	i.mu.Unlock()

	L := i.state
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	L.SetContext(ctx)

	board := boardTable(L, b)

	var mv game.Move
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- func() error {
			fn := L.GetField(i.player, "select_move")
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, i.player, board); err != nil {
				return err
			}
			rowVal := L.Get(-2)
			colVal := L.Get(-1)
			L.Pop(2)
			row, okRow := integer(rowVal)
			col, okCol := integer(colVal)
			if !okRow || !okCol {
				return fmt.Errorf("select_move returned (%s, %s), want two integers", rowVal.Type(), colVal.Type())
			}
			// Lua board tables are 1-based.
			mv = game.Move{Row: row - 1, Col: col - 1}
			return nil
		}()
	}()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		if err != nil {
			return game.Move{}, elapsed, FaultInvalidMove, fmt.Errorf("bot %q: %w", i.name, err)
		}
		for _, m := range legal {
			if m == mv {
				return mv, elapsed, FaultNone, nil
			}
		}
		return game.Move{}, elapsed, FaultInvalidMove,
			fmt.Errorf("bot %q returned illegal move (%d, %d)", i.name, mv.Row, mv.Col)
	case <-ctx.Done():
		i.abandon(done)
		return game.Move{}, time.Since(start), FaultTimeout,
			fmt.Errorf("bot %q exceeded %s move time limit", i.name, timeout)
	}
}

// abandon marks the instance unusable and defers interpreter teardown until
// the cancelled worker actually returns.
func (i *Instance) abandon(done <-chan error) {
	i.mu.Lock()
	i.abandoned = true
	i.mu.Unlock()
	go func() {
		<-done
		i.state.Close()
	}()
}

// Close releases the interpreter. Safe to call more than once.
func (i *Instance) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.abandoned {
		return
	}
	i.closed = true
	i.state.Close()
}

func boardTable(L *lua.LState, b game.Board) *lua.LTable {
	board := L.CreateTable(b.Size, 0)
	for r := 0; r < b.Size; r++ {
		row := L.CreateTable(b.Size, 0)
		for c := 0; c < b.Size; c++ {
			row.RawSetInt(c+1, lua.LNumber(b.Cells[r][c]))
		}
		board.RawSetInt(r+1, row)
	}
	return board
}

func integer(v lua.LValue) (int, bool) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, false
	}
	f := float64(n)
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
