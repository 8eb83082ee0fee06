// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crate(label string, weight int) Content {
	return Content{Label: label, Weight: weight}
}

func TestCell_IndexRoundTrip(t *testing.T) {
	for i := 0; i < Size; i++ {
		c := CellAt(i)
		require.True(t, c.Valid(), "cell %s", c)
		assert.Equal(t, i, c.Index())
	}
}

func TestCell_String(t *testing.T) {
	assert.Equal(t, "[01,07]", Cell{Row: 1, Col: 7}.String())
	assert.Equal(t, "[08,12]", Cell{Row: 8, Col: 12}.String())
}

func TestSideOf(t *testing.T) {
	tests := []struct {
		col  int
		want Side
	}{
		{1, Port},
		{6, Port},
		{7, Starboard},
		{12, Starboard},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SideOf(tt.col), "col %d", tt.col)
	}
}

func TestGrid_Weights(t *testing.T) {
	g := New()
	require.NoError(t, g.Set(Cell{Row: 1, Col: 1}, crate("Cat", 10)))
	require.NoError(t, g.Set(Cell{Row: 2, Col: 1}, crate("Dog", 5)))
	require.NoError(t, g.Set(Cell{Row: 1, Col: 12}, crate("Owl", 7)))
	require.NoError(t, g.Set(Cell{Row: 1, Col: 6}, Void))

	assert.Equal(t, 15, g.SideWeight(Port))
	assert.Equal(t, 7, g.SideWeight(Starboard))
	assert.Equal(t, 22, g.TotalWeight())
	assert.Equal(t, 3, g.CrateCount())
	assert.Equal(t, []int{10, 7, 5}, g.Crates())
	assert.ElementsMatch(t, []int{10, 5}, g.SideCrates(Port))
}

func TestGrid_SetRejectsInvalidCell(t *testing.T) {
	g := New()
	err := g.Set(Cell{Row: 9, Col: 1}, crate("Cat", 1))
	assert.ErrorIs(t, err, ErrInvalidCell)
}

func TestGrid_TopCrateAndFirstOpenSlot(t *testing.T) {
	g := New()
	require.NoError(t, g.Set(Cell{Row: 1, Col: 3}, Void))
	require.NoError(t, g.Set(Cell{Row: 2, Col: 3}, crate("A", 1)))
	require.NoError(t, g.Set(Cell{Row: 3, Col: 3}, crate("B", 2)))

	top, ok := g.TopCrate(3)
	require.True(t, ok)
	assert.Equal(t, Cell{Row: 3, Col: 3}, top)

	open, ok := g.FirstOpenSlot(3)
	require.True(t, ok)
	assert.Equal(t, Cell{Row: 4, Col: 3}, open)

	_, ok = g.TopCrate(4)
	assert.False(t, ok, "empty column has no crate")

	for row := 1; row <= Rows; row++ {
		require.NoError(t, g.Set(Cell{Row: row, Col: 5}, Void))
	}
	_, ok = g.FirstOpenSlot(5)
	assert.False(t, ok, "void column has no slot")
}

func TestGrid_ObstructionHeight(t *testing.T) {
	g := New()
	for row := 1; row <= 4; row++ {
		require.NoError(t, g.Set(Cell{Row: row, Col: 5}, crate(string(rune('a'+row)), row)))
	}
	require.NoError(t, g.Set(Cell{Row: 1, Col: 3}, crate("low", 1)))

	assert.Equal(t, 4, g.ObstructionHeight(2, 8))
	assert.Equal(t, 4, g.ObstructionHeight(8, 2), "order of columns does not matter")
	assert.Equal(t, 1, g.ObstructionHeight(2, 5), "endpoints are excluded")
	assert.Equal(t, 0, g.ObstructionHeight(6, 7), "adjacent columns have nothing between")
}

func TestGrid_SwapMovesContentOnly(t *testing.T) {
	g := New()
	src, dst := Cell{Row: 1, Col: 1}, Cell{Row: 1, Col: 9}
	require.NoError(t, g.Set(src, crate("Cat", 10)))

	g.Swap(src, dst)

	assert.True(t, g.At(src).IsEmpty())
	assert.Equal(t, crate("Cat", 10), g.At(dst))
}

func TestGrid_KeyIsValueBased(t *testing.T) {
	a := New()
	b := New()
	require.NoError(t, a.Set(Cell{Row: 1, Col: 1}, crate("Cat", 10)))
	require.NoError(t, b.Set(Cell{Row: 1, Col: 1}, crate("Cat", 10)))

	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a == b)

	key := a.Key()
	a.Swap(Cell{Row: 1, Col: 1}, Cell{Row: 1, Col: 2})
	assert.NotEqual(t, key, a.Key(), "key tracks content")
	assert.Equal(t, b.Key(), key, "earlier key is unaffected by later edits")
}

func TestGrid_KeyDistinguishesLabelBoundaries(t *testing.T) {
	a := New()
	b := New()
	require.NoError(t, a.Set(Cell{Row: 1, Col: 1}, crate("ab", 1)))
	require.NoError(t, a.Set(Cell{Row: 1, Col: 2}, crate("c", 1)))
	require.NoError(t, b.Set(Cell{Row: 1, Col: 1}, crate("a", 1)))
	require.NoError(t, b.Set(Cell{Row: 1, Col: 2}, crate("bc", 1)))

	assert.NotEqual(t, a.Key(), b.Key())
}

func TestGrid_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *Grid)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(g *Grid) { _ = g.Set(Cell{Row: 1, Col: 1}, crate("Cat", 10)) },
		},
		{
			name:    "negative weight",
			mutate:  func(g *Grid) { _ = g.Set(Cell{Row: 1, Col: 1}, crate("Cat", -1)) },
			wantErr: ErrNegativeWeight,
		},
		{
			name:    "empty label",
			mutate:  func(g *Grid) { _ = g.Set(Cell{Row: 1, Col: 1}, Content{}) },
			wantErr: ErrEmptyLabel,
		},
		{
			name:    "weighted void",
			mutate:  func(g *Grid) { _ = g.Set(Cell{Row: 1, Col: 1}, Content{Label: LabelVoid, Weight: 3}) },
			wantErr: ErrWeightedSlot,
		},
		{
			name: "duplicate crate",
			mutate: func(g *Grid) {
				_ = g.Set(Cell{Row: 1, Col: 1}, crate("Cat", 1))
				_ = g.Set(Cell{Row: 1, Col: 2}, crate("Cat", 2))
			},
			wantErr: ErrDuplicateCrate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			tt.mutate(&g)
			err := g.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
