package game

import "fmt"

// Cell is the content of one board square. The numeric values are part of
// the wire protocol: -1 empty, 0 black, 1 white.
type Cell int

const (
	Empty Cell = -1
	Black Cell = 0
	White Cell = 1
)

// Opponent returns the other side. Calling it on Empty is a programming error.
func (c Cell) Opponent() Cell {
	return 1 - c
}

func (c Cell) String() string {
	switch c {
	case Black:
		return "Black"
	case White:
		return "White"
	default:
		return "Empty"
	}
}

// Move is a (row, col) placement, 0-indexed from the top-left corner.
type Move struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

const (
	MinBoardSize = 4
	MaxBoardSize = 100
)

// Board represents an n×n Othello board.
type Board struct {
	Size  int
	Cells [][]Cell
}

// NewBoard returns a board of the given size with the four center cells
// seeded in the standard starting position.
func NewBoard(size int) (Board, error) {
	if size < MinBoardSize || size > MaxBoardSize {
		return Board{}, fmt.Errorf("board size must be between %d and %d, got %d", MinBoardSize, MaxBoardSize, size)
	}
	if size%2 != 0 {
		return Board{}, fmt.Errorf("board size must be even, got %d", size)
	}

	cells := make([][]Cell, size)
	for r := range cells {
		cells[r] = make([]Cell, size)
		for c := range cells[r] {
			cells[r][c] = Empty
		}
	}

	mid := size / 2
	cells[mid-1][mid-1] = White
	cells[mid-1][mid] = Black
	cells[mid][mid-1] = Black
	cells[mid][mid] = White

	return Board{Size: size, Cells: cells}, nil
}

// Copy returns a deep copy of the board.
func (b Board) Copy() Board {
	cells := make([][]Cell, b.Size)
	for r := range cells {
		cells[r] = make([]Cell, b.Size)
		copy(cells[r], b.Cells[r])
	}
	return Board{Size: b.Size, Cells: cells}
}

// InBounds reports whether (row, col) is on the board.
func (b Board) InBounds(row, col int) bool {
	return row >= 0 && row < b.Size && col >= 0 && col < b.Size
}

// Get returns the piece at (row, col), or Empty for out-of-bounds positions.
func (b Board) Get(row, col int) Cell {
	if !b.InBounds(row, col) {
		return Empty
	}
	return b.Cells[row][col]
}

// Set places a piece at (row, col). Out-of-bounds positions are ignored.
func (b Board) Set(row, col int, c Cell) {
	if b.InBounds(row, col) {
		b.Cells[row][col] = c
	}
}

// Counts returns the number of black and white pieces on the board.
func (b Board) Counts() (black, white int) {
	for _, row := range b.Cells {
		for _, cell := range row {
			switch cell {
			case Black:
				black++
			case White:
				white++
			}
		}
	}
	return black, white
}

// Full reports whether every cell is occupied.
func (b Board) Full() bool {
	for _, row := range b.Cells {
		for _, cell := range row {
			if cell == Empty {
				return false
			}
		}
	}
	return true
}
