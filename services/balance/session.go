// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package balance

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/ballast/services/balance/grid"
	"github.com/AleutianAI/ballast/services/balance/planner"
)

// ParkCell is where the crane rests between cycles, just outside the bay.
var ParkCell = grid.Cell{Row: grid.Rows + 1, Col: 1}

// StepPark moves the empty crane out of or back to the park cell.
const StepPark planner.StepKind = "park"

// Colour highlights a cell for the operator.
type Colour string

const (
	ColourNone   Colour = ""
	ColourSource Colour = "green"
	ColourTarget Colour = "red"
)

// Session walks an operator through one plan, step by step.
//
// # Description
//
// The steps are the plan's steps bracketed by two park legs, one from the
// park cell to the first pickup and one from the last drop-off back. A
// ship that needed no moves gets no steps at all and starts finished.
//
// The current step's source is coloured green and its target red. Leaving
// a relocation step applies it to the live grid, so the grid always shows
// the bay as it is before the current step is carried out.
//
// # Thread Safety
//
// Callers hold mu around advance and view. lastAccess is atomic.
type Session struct {
	id           string
	manifest     string
	outboundPath string
	outboundName string
	totalTime    int
	cached       bool
	createdAt    time.Time
	lastAccess   atomic.Int64

	mu        sync.Mutex
	grid      grid.Grid
	colours   [grid.Size]Colour
	park      Colour
	steps     []planner.Step
	current   int
	allDone   bool
	updatedAt time.Time
}

func newSession(id string, g grid.Grid, plan planner.Plan, now time.Time) *Session {
	s := &Session{
		id:        id,
		grid:      g,
		steps:     withParkLegs(plan),
		totalTime: plan.TotalCost,
		createdAt: now,
		updatedAt: now,
	}
	s.touch(now)
	if len(s.steps) == 0 {
		s.allDone = true
		return s
	}
	s.paint(s.steps[0], ColourSource, ColourTarget)
	return s
}

// withParkLegs brackets a non-empty plan with trips to and from the park
// cell. Park legs cost nothing.
func withParkLegs(plan planner.Plan) []planner.Step {
	if len(plan.Steps) == 0 {
		return []planner.Step{}
	}
	first := plan.Steps[0]
	last := plan.Steps[len(plan.Steps)-1]

	steps := make([]planner.Step, 0, len(plan.Steps)+2)
	steps = append(steps, planner.Step{
		Action: planner.Action{From: ParkCell, To: first.From},
		Kind:   StepPark,
	})
	steps = append(steps, plan.Steps...)
	steps = append(steps, planner.Step{
		Action: planner.Action{From: last.To, To: ParkCell},
		Kind:   StepPark,
	})
	return steps
}

func (s *Session) touch(now time.Time) {
	s.lastAccess.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

func (s *Session) paint(step planner.Step, from, to Colour) {
	s.setColour(step.From, from)
	s.setColour(step.To, to)
}

func (s *Session) setColour(c grid.Cell, colour Colour) {
	if c == ParkCell {
		s.park = colour
		return
	}
	s.colours[c.Index()] = colour
}

// pending returns the relocation the next advance will apply, if any.
func (s *Session) pending() (planner.Step, bool) {
	if s.allDone || s.current >= len(s.steps)-1 {
		return planner.Step{}, false
	}
	step := s.steps[s.current]
	return step, step.Kind == planner.StepRelocate
}

// advance finishes the current step and moves to the next one.
//
// Returns the finished step and true, or false when the session was
// already done. Finishing the last step only clears the highlights.
func (s *Session) advance(now time.Time) (planner.Step, bool) {
	if s.allDone {
		return planner.Step{}, false
	}
	step := s.steps[s.current]
	s.paint(step, ColourNone, ColourNone)
	s.updatedAt = now

	if s.current >= len(s.steps)-1 {
		s.allDone = true
		return step, true
	}
	if step.Kind == planner.StepRelocate {
		s.grid.Swap(step.From, step.To)
	}
	s.current++
	s.paint(s.steps[s.current], ColourSource, ColourTarget)
	return step, true
}

// view snapshots the session for the API.
func (s *Session) view() *GridResponse {
	cells := make([]CellView, 0, grid.Size)
	for i := range grid.Size {
		c := grid.CellAt(i)
		content := s.grid.At(c)
		cells = append(cells, CellView{
			Row:    c.Row,
			Col:    c.Col,
			Weight: content.Weight,
			Label:  content.Label,
			Colour: s.colours[i],
		})
	}

	steps := make([]planner.Step, len(s.steps))
	copy(steps, s.steps)

	return &GridResponse{
		SessionID:   strfmt.UUID(s.id),
		Manifest:    s.manifest,
		Outbound:    s.outboundName,
		Cells:       cells,
		ParkCell:    s.park,
		Steps:       steps,
		NumSteps:    len(steps),
		CurrentStep: s.current,
		AllDone:     s.allDone,
		TotalTime:   s.totalTime,
		Cached:      s.cached,
		UpdatedAt:   strfmt.DateTime(s.updatedAt),
	}
}
