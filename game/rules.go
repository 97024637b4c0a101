package game

import (
	"errors"
	"fmt"
)

// ErrIllegalMove is returned by ApplyMove for placements that flip nothing.
var ErrIllegalMove = errors.New("illegal move")

// Winner identifies the outcome of a finished game. The numeric values are
// part of the wire protocol: 0 black, 1 white, -1 draw.
type Winner int

const (
	WinnerBlack Winner = 0
	WinnerWhite Winner = 1
	WinnerDraw  Winner = -1
)

func (w Winner) String() string {
	switch w {
	case WinnerBlack:
		return "Black"
	case WinnerWhite:
		return "White"
	default:
		return "Draw"
	}
}

// The eight scan directions: N, NE, E, SE, S, SW, W, NW.
var directions = [8][2]int{
	{-1, 0}, {-1, 1}, {0, 1}, {1, 1},
	{1, 0}, {1, -1}, {0, -1}, {-1, -1},
}

// ValidMoves returns every legal move for the given side, in row-major order.
func ValidMoves(b Board, side Cell) []Move {
	var moves []Move
	for row := 0; row < b.Size; row++ {
		for col := 0; col < b.Size; col++ {
			if IsValidMove(b, side, row, col) {
				moves = append(moves, Move{Row: row, Col: col})
			}
		}
	}
	return moves
}

// IsValidMove reports whether placing side at (row, col) flips at least one
// opposing piece.
func IsValidMove(b Board, side Cell, row, col int) bool {
	if !b.InBounds(row, col) || b.Cells[row][col] != Empty {
		return false
	}
	opp := side.Opponent()
	for _, d := range directions {
		if wouldFlip(b, side, opp, row, col, d[0], d[1]) {
			return true
		}
	}
	return false
}

// wouldFlip walks outward from (row, col) and reports whether the direction
// holds one or more opposing pieces bounded by a same-side piece.
func wouldFlip(b Board, side, opp Cell, row, col, dr, dc int) bool {
	r, c := row+dr, col+dc
	foundOpp := false
	for b.InBounds(r, c) {
		switch b.Cells[r][c] {
		case Empty:
			return false
		case opp:
			foundOpp = true
		default:
			return foundOpp
		}
		r += dr
		c += dc
	}
	return false
}

// ApplyMove places side's piece at mv and flips the captured runs in all
// eight directions, mutating the board. It returns the flipped cells, or
// ErrIllegalMove with the board untouched.
func ApplyMove(b *Board, side Cell, mv Move) ([]Move, error) {
	if !IsValidMove(*b, side, mv.Row, mv.Col) {
		return nil, fmt.Errorf("%w: (%d, %d) for %s", ErrIllegalMove, mv.Row, mv.Col, side)
	}

	b.Cells[mv.Row][mv.Col] = side
	opp := side.Opponent()

	var flipped []Move
	for _, d := range directions {
		if !wouldFlip(*b, side, opp, mv.Row, mv.Col, d[0], d[1]) {
			continue
		}
		r, c := mv.Row+d[0], mv.Col+d[1]
		for b.Cells[r][c] == opp {
			b.Cells[r][c] = side
			flipped = append(flipped, Move{Row: r, Col: c})
			r += d[0]
			c += d[1]
		}
	}
	return flipped, nil
}

// HasMoves reports whether the given side has at least one legal move.
func HasMoves(b Board, side Cell) bool {
	for row := 0; row < b.Size; row++ {
		for col := 0; col < b.Size; col++ {
			if IsValidMove(b, side, row, col) {
				return true
			}
		}
	}
	return false
}

// GameOver reports whether the game has ended (board full, or neither side
// has a legal move) and, if so, who won.
func GameOver(b Board) (bool, Winner) {
	if !b.Full() && (HasMoves(b, Black) || HasMoves(b, White)) {
		return false, WinnerDraw
	}
	return true, decideWinner(b)
}

func decideWinner(b Board) Winner {
	black, white := b.Counts()
	switch {
	case black > white:
		return WinnerBlack
	case white > black:
		return WinnerWhite
	default:
		return WinnerDraw
	}
}
