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

import (
	"fmt"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// Action moves the crane from one cell to another, with or without cargo.
type Action struct {
	From grid.Cell `json:"from" yaml:"from"`
	To   grid.Cell `json:"to" yaml:"to"`
}

// String renders the action as "[rr,cc] -> [rr,cc]".
func (a Action) String() string {
	return fmt.Sprintf("%s -> %s", a.From, a.To)
}

// State is one node of the search.
//
// The grid is owned by the state and never modified after construction.
// Parent points root-ward only, so ancestry is finite and acyclic.
type State struct {
	Grid grid.Grid

	// Parent is the state this one was generated from; nil for the root.
	Parent *State

	// Action produced this state from Parent. Zero for the root.
	Action Action

	// Cost is the travel cost of Action alone.
	Cost int

	G     int
	H     int
	F     int
	Score int

	key string
}

// newRoot builds the root state of a search.
func newRoot(g grid.Grid) *State {
	s := &State{Grid: g}
	s.H = Heuristic(&s.Grid)
	s.F = s.G + s.H
	s.Score = ImbalanceScore(&s.Grid)
	return s
}

// Key returns the state's content key, computed once.
func (s *State) Key() string {
	if s.key == "" {
		s.key = s.Grid.Key()
	}
	return s.key
}

// Depth returns the number of relocations between the root and s.
func (s *State) Depth() int {
	depth := 0
	for n := s; n.Parent != nil; n = n.Parent {
		depth++
	}
	return depth
}
