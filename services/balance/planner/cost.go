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
	"math"
	"slices"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// localTolerance is the share of total cargo weight accepted as imbalance.
const localTolerance = 0.10

// ImbalanceScore returns the absolute weight difference between the sides.
func ImbalanceScore(g *grid.Grid) int {
	return abs(g.SideWeight(grid.Port) - g.SideWeight(grid.Starboard))
}

// Thresholds are the goal tolerances fixed from the root grid.
type Thresholds struct {
	// MinLocal is 10% of total cargo weight, rounded to 2 decimal places.
	MinLocal float64 `json:"min_local" yaml:"min_local"`

	// MinGlobal is the finest imbalance the cargo could possibly reach.
	MinGlobal float64 `json:"min_global" yaml:"min_global"`
}

// NewThresholds derives the goal tolerances from the root grid.
//
// # Description
//
// MinLocal is round(10% of total weight, 2). MinGlobal depends on how many
// crates are aboard: with an even count it is the gap between the two
// smallest distinct weights, with an odd count it is the smallest weight.
// No cargo yields 0, as does an even count with a single distinct weight.
func NewThresholds(root *grid.Grid) Thresholds {
	weights := root.Crates()
	t := Thresholds{
		MinLocal: math.Round(float64(root.TotalWeight())*localTolerance*100) / 100,
	}
	if len(weights) == 0 {
		return t
	}

	distinct := slices.Clone(weights)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	if len(weights)%2 == 0 {
		if len(distinct) >= 2 {
			t.MinGlobal = float64(distinct[1] - distinct[0])
		}
		return t
	}
	t.MinGlobal = float64(distinct[0])
	return t
}

// Satisfied is the goal predicate. It depends only on the grid's content.
func (t Thresholds) Satisfied(g *grid.Grid) bool {
	score := float64(ImbalanceScore(g))
	return score <= t.MinLocal || score <= t.MinGlobal
}

// Heuristic estimates how many crates must still move to balance the ship.
//
// # Description
//
// The heavier side donates. Its crates are drawn greedily, each time taking
// the weight closest to the deficit still outstanding, until the relocated
// weight covers the receiver's deficit against half the total. The number of
// crates drawn is the estimate.
//
// # Outputs
//
//   - int: Crate count. 0 when there is no cargo or no deficit; when the
//     donor runs out of crates first, the count reached so far.
func Heuristic(g *grid.Grid) int {
	port := g.SideWeight(grid.Port)
	starboard := g.SideWeight(grid.Starboard)
	total := port + starboard
	if total == 0 {
		return 0
	}

	target := float64(total) / 2
	donor, receiver := grid.Port, starboard
	if starboard > port {
		donor, receiver = grid.Starboard, port
	}
	deficit := math.Abs(float64(receiver) - target)

	pool := g.SideCrates(donor)
	slices.Sort(pool)

	moves := 0
	relocated := 0.0
	for relocated < deficit && len(pool) > 0 {
		remaining := deficit - relocated
		best := 0
		for i := 1; i < len(pool); i++ {
			if math.Abs(float64(pool[i])-remaining) < math.Abs(float64(pool[best])-remaining) {
				best = i
			}
		}
		relocated += float64(pool[best])
		pool = slices.Delete(pool, best, best+1)
		moves++
	}
	return moves
}

// MoveCost returns the crane travel for one action taken on grid g.
//
// # Description
//
// The crane travels horizontally between the two columns. Vertically, if any
// stack strictly between them reaches at least as high as both endpoints,
// the crane must lift over it: each endpoint pays its distance to the top of
// that stack plus one. Otherwise the crane only pays the row difference.
//
// # Inputs
//
//   - g: The grid as it stands before the action.
//   - a: The action. Source and destination may be the same cell.
//
// # Outputs
//
//   - int: Non-negative travel cost.
func MoveCost(g *grid.Grid, a Action) int {
	left, right := a.From.Col, a.To.Col
	if left > right {
		left, right = right, left
	}
	heights := [2]int{a.From.Row, a.To.Row}
	obstruction := g.ObstructionHeight(left, right)

	var vertical int
	if heights[0] <= obstruction && heights[1] <= obstruction {
		for _, h := range heights {
			vertical += abs(h-obstruction) + 1
		}
	} else {
		vertical = abs(heights[0] - heights[1])
	}
	return vertical + (right - left)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
