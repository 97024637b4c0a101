package game

// The four flip axes: vertical, diagonal, horizontal, anti-diagonal.
var axes = [4][2]int{
	{-1, 0}, {-1, 1}, {0, 1}, {1, 1},
}

// StablePieces returns the cells that can no longer be flipped for the
// remainder of the game, in row-major order.
//
// The analysis is a conservative fixed point rather than an exact solve:
// a piece is marked stable once every one of its four axes is closed by
// the board edge, anchored by an adjacent stable piece of the same color,
// or fully occupied. A cell satisfying all four conditions has no
// direction left along which a capturing run could form, so the result
// never over-marks; exact stability is intractable at large board sizes.
func StablePieces(b Board) []Move {
	stable := make([][]bool, b.Size)
	for r := range stable {
		stable[r] = make([]bool, b.Size)
	}

	changed := true
	for changed {
		changed = false
		for r := 0; r < b.Size; r++ {
			for c := 0; c < b.Size; c++ {
				if b.Cells[r][c] == Empty || stable[r][c] {
					continue
				}
				if cellStable(b, stable, r, c) {
					stable[r][c] = true
					changed = true
				}
			}
		}
	}

	var out []Move
	for r := 0; r < b.Size; r++ {
		for c := 0; c < b.Size; c++ {
			if stable[r][c] {
				out = append(out, Move{Row: r, Col: c})
			}
		}
	}
	return out
}

func cellStable(b Board, stable [][]bool, row, col int) bool {
	for _, a := range axes {
		if !axisClosed(b, stable, row, col, a[0], a[1]) {
			return false
		}
	}
	return true
}

// axisClosed reports whether no capturing run can form through (row, col)
// along the axis (dr, dc).
func axisClosed(b Board, stable [][]bool, row, col, dr, dc int) bool {
	// Flush against the edge on either end.
	if !b.InBounds(row+dr, col+dc) || !b.InBounds(row-dr, col-dc) {
		return true
	}

	// Anchored by an adjacent stable piece of the same color.
	side := b.Cells[row][col]
	for _, sign := range [2]int{1, -1} {
		r, c := row+sign*dr, col+sign*dc
		if stable[r][c] && b.Cells[r][c] == side {
			return true
		}
	}

	// A fully occupied line leaves no room for a new flanking piece.
	for _, sign := range [2]int{1, -1} {
		r, c := row+sign*dr, col+sign*dc
		for b.InBounds(r, c) {
			if b.Cells[r][c] == Empty {
				return false
			}
			r += sign * dr
			c += sign * dc
		}
	}
	return true
}
