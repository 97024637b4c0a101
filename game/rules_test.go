package game

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// emptyBoard returns a board of the given size with no pieces at all, for
// hand-built positions.
func emptyBoard(t *testing.T, size int) Board {
	t.Helper()
	b, err := NewBoard(size)
	require.NoError(t, err)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			b.Set(r, c, Empty)
		}
	}
	return b
}

func TestOpeningMoves(t *testing.T) {
	b, err := NewBoard(8)
	require.NoError(t, err)

	moves := ValidMoves(b, Black)
	require.Equal(t, []Move{{2, 3}, {3, 2}, {4, 5}, {5, 4}}, moves,
		"Black's opening moves should be the four canonical squares in row-major order")

	moves = ValidMoves(b, White)
	require.Equal(t, []Move{{2, 4}, {3, 5}, {4, 2}, {5, 3}}, moves)
}

func TestApplyMove(t *testing.T) {
	t.Run("flips the flanked run", func(t *testing.T) {
		b, err := NewBoard(8)
		require.NoError(t, err)

		flipped, err := ApplyMove(&b, Black, Move{2, 3})
		require.NoError(t, err)
		require.Equal(t, []Move{{3, 3}}, flipped)
		require.Equal(t, Black, b.Get(2, 3))
		require.Equal(t, Black, b.Get(3, 3))

		black, white := b.Counts()
		require.Equal(t, 4, black)
		require.Equal(t, 1, white)
	})

	t.Run("flips runs in several directions at once", func(t *testing.T) {
		b := emptyBoard(t, 8)
		// Black at (3,3) flanks west and north runs simultaneously.
		b.Set(3, 0, Black)
		b.Set(3, 1, White)
		b.Set(3, 2, White)
		b.Set(0, 3, Black)
		b.Set(1, 3, White)
		b.Set(2, 3, White)

		flipped, err := ApplyMove(&b, Black, Move{3, 3})
		require.NoError(t, err)
		require.Len(t, flipped, 4)
		for _, mv := range []Move{{3, 1}, {3, 2}, {1, 3}, {2, 3}} {
			require.Equal(t, Black, b.Get(mv.Row, mv.Col))
		}
	})

	t.Run("rejects illegal placements and leaves the board untouched", func(t *testing.T) {
		b, err := NewBoard(8)
		require.NoError(t, err)
		before := b.Copy()

		for _, mv := range []Move{
			{3, 3},   // occupied
			{0, 0},   // flips nothing
			{-1, 2},  // off the board
			{8, 8},   // off the board
			{2, 4},   // legal for White, not Black
		} {
			_, err := ApplyMove(&b, Black, mv)
			require.ErrorIs(t, err, ErrIllegalMove, "Move %v should be illegal for Black", mv)
		}
		require.Equal(t, before.Cells, b.Cells, "Failed moves should not mutate the board")
	})
}

func TestGameOver(t *testing.T) {
	t.Run("fresh board is not over", func(t *testing.T) {
		b, err := NewBoard(8)
		require.NoError(t, err)
		over, _ := GameOver(b)
		require.False(t, over)
	})

	t.Run("no moves for either side ends the game early", func(t *testing.T) {
		b := emptyBoard(t, 4)
		b.Set(0, 0, Black)

		require.False(t, HasMoves(b, Black))
		require.False(t, HasMoves(b, White))

		over, winner := GameOver(b)
		require.True(t, over, "Game should end when neither side can move, even on a sparse board")
		require.Equal(t, WinnerBlack, winner)
	})

	t.Run("full board counts pieces", func(t *testing.T) {
		b := emptyBoard(t, 4)
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				if r < 2 {
					b.Set(r, c, White)
				} else {
					b.Set(r, c, Black)
				}
			}
		}
		over, winner := GameOver(b)
		require.True(t, over)
		require.Equal(t, WinnerDraw, winner)

		b.Set(0, 0, Black)
		_, winner = GameOver(b)
		require.Equal(t, WinnerBlack, winner)
	})
}

// TestRandomPlayouts drives full games with uniformly random legal moves and
// checks the structural invariants every playout must satisfy.
func TestRandomPlayouts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, size := range []int{4, 6, 8} {
		for trial := 0; trial < 20; trial++ {
			b, err := NewBoard(size)
			require.NoError(t, err)

			side := Black
			passes := 0
			for moves := 0; moves <= size*size; moves++ {
				legal := ValidMoves(b, side)
				if len(legal) == 0 {
					passes++
					if passes == 2 {
						break
					}
					side = side.Opponent()
					continue
				}
				passes = 0

				mv := legal[rng.Intn(len(legal))]
				flipped, err := ApplyMove(&b, side, mv)
				require.NoError(t, err, "Moves reported legal must apply cleanly")
				require.NotEmpty(t, flipped, "Every legal move must flip at least one piece")
				side = side.Opponent()
			}

			over, winner := GameOver(b)
			require.True(t, over, "Random playout must reach a finished position")
			black, white := b.Counts()
			switch {
			case black > white:
				require.Equal(t, WinnerBlack, winner)
			case white > black:
				require.Equal(t, WinnerWhite, winner)
			default:
				require.Equal(t, WinnerDraw, winner)
			}
		}
	}
}
