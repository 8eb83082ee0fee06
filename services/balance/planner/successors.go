// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import "github.com/AleutianAI/ballast/services/balance/grid"

// Moves lists every legal relocation from g.
//
// # Description
//
// Only the top crate of a column can be lifted, and only the lowest unused
// slot of a column can receive it. Each reachable crate is paired with the
// reachable slot of every other column. Moves within one column are not
// generated. Order is by source column, then destination column.
func Moves(g *grid.Grid) []Action {
	var crates, slots [grid.Cols]grid.Cell
	var hasCrate, hasSlot [grid.Cols]bool
	for col := 1; col <= grid.Cols; col++ {
		crates[col-1], hasCrate[col-1] = g.TopCrate(col)
		slots[col-1], hasSlot[col-1] = g.FirstOpenSlot(col)
	}

	var moves []Action
	for src := 0; src < grid.Cols; src++ {
		if !hasCrate[src] {
			continue
		}
		for dst := 0; dst < grid.Cols; dst++ {
			if dst == src || !hasSlot[dst] {
				continue
			}
			moves = append(moves, Action{From: crates[src], To: slots[dst]})
		}
	}
	return moves
}

// Successors expands a state into one child per legal move.
//
// Each child owns a copy of the parent's grid with the source and
// destination content exchanged. The parent is never modified.
func Successors(parent *State) []*State {
	moves := Moves(&parent.Grid)
	children := make([]*State, 0, len(moves))
	for _, move := range moves {
		children = append(children, child(parent, move))
	}
	return children
}

func child(parent *State, move Action) *State {
	cost := MoveCost(&parent.Grid, move)
	s := &State{
		Grid:   parent.Grid,
		Parent: parent,
		Action: move,
		Cost:   cost,
		G:      parent.G + cost,
	}
	s.Grid.Swap(move.From, move.To)
	s.H = Heuristic(&s.Grid)
	s.F = s.G + s.H
	s.Score = ImbalanceScore(&s.Grid)
	return s
}
