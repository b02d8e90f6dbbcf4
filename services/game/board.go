// Package game owns the per-session state machine: board, turn alternation,
// deadline enforcement, win detection, spectators and the hand-off to
// settlement and archiving.
package game

import (
	"math/rand"

	"Renju/protocol"
)

// Color marks a stone or the side to move. Black always moves first.
type Color string

const (
	Black Color = "black"
	White Color = "white"
	empty Color = ""
)

// Opponent returns the other color.
func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

// Position is one board coordinate, zero-based.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Board is the N×N grid. An occupied cell is never overwritten.
type Board struct {
	size   int
	cells  [][]Color
	stones int
}

func NewBoard(size int) *Board {
	cells := make([][]Color, size)
	for i := range cells {
		cells[i] = make([]Color, size)
	}
	return &Board{size: size, cells: cells}
}

func (b *Board) Size() int { return b.size }

func (b *Board) inBounds(p Position) bool {
	return p.Row >= 0 && p.Row < b.size && p.Col >= 0 && p.Col < b.size
}

// At returns the stone at p, or the empty color.
func (b *Board) At(p Position) Color {
	return b.cells[p.Row][p.Col]
}

// Place puts a stone at p. Out-of-bounds or occupied positions are
// rejected without touching the grid.
func (b *Board) Place(p Position, c Color) error {
	if !b.inBounds(p) {
		return protocol.NewError(protocol.CodeInvalidPosition, "position out of bounds")
	}
	if b.cells[p.Row][p.Col] != empty {
		return protocol.NewError(protocol.CodeInvalidPosition, "position already occupied")
	}
	b.cells[p.Row][p.Col] = c
	b.stones++
	return nil
}

// Full reports whether every cell is occupied.
func (b *Board) Full() bool {
	return b.stones == b.size*b.size
}

// WinningMove reports whether the stone just placed at p completes five or
// more contiguous same-color stones. Only the four lines through p are
// scanned, outward in both directions from the new stone.
func (b *Board) WinningMove(p Position) bool {
	color := b.cells[p.Row][p.Col]
	if color == empty {
		return false
	}

	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		for _, sign := range [2]int{1, -1} {
			r, c := p.Row+sign*d[0], p.Col+sign*d[1]
			for r >= 0 && r < b.size && c >= 0 && c < b.size && b.cells[r][c] == color {
				count++
				r += sign * d[0]
				c += sign * d[1]
			}
		}
		if count >= 5 {
			return true
		}
	}
	return false
}

// RandomEmpty picks a uniformly random empty cell. ok is false on a full
// board.
func (b *Board) RandomEmpty(rng *rand.Rand) (Position, bool) {
	free := b.size*b.size - b.stones
	if free == 0 {
		return Position{}, false
	}
	nth := rng.Intn(free)
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			if b.cells[r][c] != empty {
				continue
			}
			if nth == 0 {
				return Position{Row: r, Col: c}, true
			}
			nth--
		}
	}
	return Position{}, false
}

// Grid returns a copy of the cells for snapshots.
func (b *Board) Grid() [][]Color {
	out := make([][]Color, b.size)
	for i, row := range b.cells {
		out[i] = make([]Color, b.size)
		copy(out[i], row)
	}
	return out
}
