// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grid models the fixed 8x12 cargo layout of a ship.
//
// # Description
//
// A Grid is a value: 96 cells of content (weight + label) laid out row-major.
// Cells never move; relocating a crate exchanges content between two cells.
// Rows grow upward (row 1 is the deck floor), so the top of a stack is the
// occupied cell with the greatest row in its column.
//
// # Sides
//
// Columns 1-6 form the Port side and columns 7-12 the Starboard side. The
// side of a cell is derived from its column and never stored.
//
// # Keys
//
// Grid is comparable with ==, and Key returns an immutable snapshot of its
// content suitable for map keys. A key never aliases the grid it was taken
// from, so later edits to a grid do not change keys already handed out.
//
// # Thread Safety
//
// Grid is a plain value. Copies are independent; sharing a *Grid across
// goroutines requires external synchronization.
package grid

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Rows is the number of slot rows in a bay.
	Rows = 8

	// Cols is the number of slot columns in a bay.
	Cols = 12

	// Size is the total number of cells.
	Size = Rows * Cols

	// PortCols is the number of columns belonging to the Port side.
	PortCols = Cols / 2
)

const (
	// LabelEmpty marks a usable slot that currently holds nothing.
	LabelEmpty = "UNUSED"

	// LabelVoid marks a position that is not a usable slot at all.
	LabelVoid = "NAN"
)

var (
	// ErrInvalidCell indicates a row or column outside the bay.
	ErrInvalidCell = errors.New("cell outside grid")

	// ErrNegativeWeight indicates a cell carrying a negative weight.
	ErrNegativeWeight = errors.New("negative weight")

	// ErrEmptyLabel indicates a cell with no label at all.
	ErrEmptyLabel = errors.New("empty label")

	// ErrWeightedSlot indicates an empty or void cell that carries weight.
	ErrWeightedSlot = errors.New("non-crate cell carries weight")

	// ErrDuplicateCrate indicates two cells sharing one crate identifier.
	ErrDuplicateCrate = errors.New("duplicate crate identifier")
)

// Side is one half of the ship.
type Side int

const (
	// Port covers columns 1 through 6.
	Port Side = iota

	// Starboard covers columns 7 through 12.
	Starboard
)

// String returns "port" or "starboard".
func (s Side) String() string {
	if s == Port {
		return "port"
	}
	return "starboard"
}

// SideOf returns the side a column belongs to.
func SideOf(col int) Side {
	if col <= PortCols {
		return Port
	}
	return Starboard
}

// Cell is a fixed physical position, 1-based.
type Cell struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

// Valid reports whether the cell lies inside the bay.
func (c Cell) Valid() bool {
	return c.Row >= 1 && c.Row <= Rows && c.Col >= 1 && c.Col <= Cols
}

// Index returns the row-major index of the cell.
func (c Cell) Index() int {
	return (c.Row-1)*Cols + (c.Col - 1)
}

// Side returns the side of the ship the cell sits on.
func (c Cell) Side() Side {
	return SideOf(c.Col)
}

// String renders the cell the way manifests do, e.g. "[01,07]".
func (c Cell) String() string {
	return fmt.Sprintf("[%02d,%02d]", c.Row, c.Col)
}

// CellAt returns the cell for a row-major index.
func CellAt(index int) Cell {
	return Cell{Row: index/Cols + 1, Col: index%Cols + 1}
}

// Content is what a cell currently holds.
type Content struct {
	Weight int    `json:"weight" yaml:"weight"`
	Label  string `json:"label" yaml:"label"`
}

// Empty is the content of an unused slot.
var Empty = Content{Label: LabelEmpty}

// Void is the content of a structural gap.
var Void = Content{Label: LabelVoid}

// IsEmpty reports whether the content is an unused slot.
func (c Content) IsEmpty() bool { return c.Label == LabelEmpty }

// IsVoid reports whether the content is a structural gap.
func (c Content) IsVoid() bool { return c.Label == LabelVoid }

// IsCrate reports whether the content is cargo.
func (c Content) IsCrate() bool { return !c.IsEmpty() && !c.IsVoid() }

// Grid is a full snapshot of the bay.
type Grid struct {
	cells [Size]Content
}

// New returns a grid where every cell is an unused slot.
func New() Grid {
	var g Grid
	for i := range g.cells {
		g.cells[i] = Empty
	}
	return g
}

// At returns the content of a cell. The cell must be valid.
func (g *Grid) At(c Cell) Content {
	return g.cells[c.Index()]
}

// Set replaces the content of a cell.
func (g *Grid) Set(c Cell, content Content) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCell, c)
	}
	g.cells[c.Index()] = content
	return nil
}

// Swap exchanges the content of two cells. Coordinates stay put.
func (g *Grid) Swap(a, b Cell) {
	ia, ib := a.Index(), b.Index()
	g.cells[ia], g.cells[ib] = g.cells[ib], g.cells[ia]
}

// Each calls fn for every cell in row-major order.
func (g *Grid) Each(fn func(Cell, Content)) {
	for i, content := range g.cells {
		fn(CellAt(i), content)
	}
}

// Crates returns the weights of every occupied cell in row-major order.
func (g *Grid) Crates() []int {
	weights := make([]int, 0, Size)
	for _, content := range g.cells {
		if content.IsCrate() {
			weights = append(weights, content.Weight)
		}
	}
	return weights
}

// SideCrates returns the weights of every occupied cell on one side.
func (g *Grid) SideCrates(side Side) []int {
	var weights []int
	for i, content := range g.cells {
		if content.IsCrate() && SideOf(i%Cols+1) == side {
			weights = append(weights, content.Weight)
		}
	}
	return weights
}

// CrateCount returns the number of occupied cells.
func (g *Grid) CrateCount() int {
	n := 0
	for _, content := range g.cells {
		if content.IsCrate() {
			n++
		}
	}
	return n
}

// SideWeight sums the cargo weight on one side.
func (g *Grid) SideWeight(side Side) int {
	total := 0
	for i, content := range g.cells {
		if content.IsCrate() && SideOf(i%Cols+1) == side {
			total += content.Weight
		}
	}
	return total
}

// TotalWeight sums all cargo weight.
func (g *Grid) TotalWeight() int {
	return g.SideWeight(Port) + g.SideWeight(Starboard)
}

// TopCrate returns the reachable crate of a column: the occupied cell with
// the greatest row. ok is false when the column holds no cargo.
func (g *Grid) TopCrate(col int) (cell Cell, ok bool) {
	for row := Rows; row >= 1; row-- {
		c := Cell{Row: row, Col: col}
		if g.At(c).IsCrate() {
			return c, true
		}
	}
	return Cell{}, false
}

// FirstOpenSlot returns the reachable empty slot of a column: the unused
// cell with the least row. ok is false when the column has no unused slot.
func (g *Grid) FirstOpenSlot(col int) (cell Cell, ok bool) {
	for row := 1; row <= Rows; row++ {
		c := Cell{Row: row, Col: col}
		if g.At(c).IsEmpty() {
			return c, true
		}
	}
	return Cell{}, false
}

// ObstructionHeight returns the greatest row of any occupied cell in the
// columns strictly between colA and colB, or 0 when there is none.
func (g *Grid) ObstructionHeight(colA, colB int) int {
	lo, hi := colA, colB
	if lo > hi {
		lo, hi = hi, lo
	}
	highest := 0
	for col := lo + 1; col < hi; col++ {
		if top, ok := g.TopCrate(col); ok && top.Row > highest {
			highest = top.Row
		}
	}
	return highest
}

// Key returns an immutable snapshot of the grid's content.
//
// Two grids produce equal keys iff every cell's weight and label match.
// Each cell is encoded as a varint weight followed by a length-prefixed
// label, which keeps the encoding unambiguous.
func (g *Grid) Key() string {
	buf := make([]byte, 0, Size*8)
	for _, content := range g.cells {
		buf = binary.AppendVarint(buf, int64(content.Weight))
		buf = binary.AppendUvarint(buf, uint64(len(content.Label)))
		buf = append(buf, content.Label...)
	}
	return string(buf)
}

// Validate checks the internal consistency of a grid.
//
// Weights must be non-negative, labels non-empty, unused and void cells
// weightless, and crate identifiers unique.
func (g *Grid) Validate() error {
	seen := make(map[string]Cell)
	for i, content := range g.cells {
		cell := CellAt(i)
		switch {
		case content.Label == "":
			return fmt.Errorf("%w at %s", ErrEmptyLabel, cell)
		case content.Weight < 0:
			return fmt.Errorf("%w at %s: %d", ErrNegativeWeight, cell, content.Weight)
		case !content.IsCrate() && content.Weight != 0:
			return fmt.Errorf("%w at %s: %s weighs %d", ErrWeightedSlot, cell, content.Label, content.Weight)
		}
		if !content.IsCrate() {
			continue
		}
		if prev, dup := seen[content.Label]; dup {
			return fmt.Errorf("%w %q at %s and %s", ErrDuplicateCrate, content.Label, prev, cell)
		}
		seen[content.Label] = cell
	}
	return nil
}
