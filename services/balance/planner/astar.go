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

// Options tunes a single search.
type Options struct {
	// MaxExpansions caps the number of states expanded.
	// Default: 0 (unlimited)
	MaxExpansions int
}

// Stats describes the work a search performed.
type Stats struct {
	// Expanded counts states moved to the closed set.
	Expanded int `json:"expanded" yaml:"expanded"`

	// Generated counts successor states produced.
	Generated int `json:"generated" yaml:"generated"`

	// Reopened counts states pushed again after a cheaper path was found.
	Reopened int `json:"reopened" yaml:"reopened"`

	// Stale counts popped entries discarded because already expanded.
	Stale int `json:"stale" yaml:"stale"`
}

// Result is the outcome of Solve.
type Result struct {
	Plan       Plan       `json:"plan" yaml:"plan"`
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`
	Stats      Stats      `json:"stats" yaml:"stats"`

	// InitialScore is the imbalance of the root grid.
	InitialScore int `json:"initial_score" yaml:"initial_score"`

	// FinalScore is the imbalance of the goal grid.
	FinalScore int `json:"final_score" yaml:"final_score"`

	// Final is the grid after every relocation has been applied.
	Final grid.Grid `json:"-" yaml:"-"`
}

// Solve searches for a plan that balances root.
//
// # Description
//
// Runs A* from root. An already balanced root returns an empty plan with
// cost 0. Otherwise the frontier is ordered by f, then imbalance score,
// then insertion order; the root itself is queued at priority 0. A popped
// state that was already expanded is skipped. A successor is queued when
// its grid has not been seen, or again when it is reached with a strictly
// lower f.
//
// # Inputs
//
//   - root: The starting grid. It is validated before searching.
//   - opts: Search options.
//
// # Outputs
//
//   - *Result: Never nil. Carries Stats even when the search fails.
//   - error: ErrMalformedGrid, ErrNoFeasiblePlan or ErrExpansionLimit.
func Solve(root grid.Grid, opts Options) (*Result, error) {
	result := &Result{}
	if err := root.Validate(); err != nil {
		return result, fmt.Errorf("%w: %w", ErrMalformedGrid, err)
	}

	start := newRoot(root)
	thresholds := NewThresholds(&start.Grid)
	result.Thresholds = thresholds
	result.InitialScore = start.Score

	if thresholds.Satisfied(&start.Grid) {
		result.Plan = Plan{Steps: []Step{}, RelocationCosts: []int{}}
		result.FinalScore = start.Score
		result.Final = start.Grid
		return result, nil
	}

	open := newOpenSet(start)
	closed := make(map[string]struct{})

	stats := &result.Stats
	for open.len() > 0 {
		current := open.pop()
		key := current.Key()
		if _, done := closed[key]; done {
			stats.Stale++
			continue
		}
		if thresholds.Satisfied(&current.Grid) {
			result.Plan = Reconstruct(current)
			result.FinalScore = current.Score
			result.Final = current.Grid
			return result, nil
		}
		if opts.MaxExpansions > 0 && stats.Expanded >= opts.MaxExpansions {
			return result, fmt.Errorf("%w: %d states expanded", ErrExpansionLimit, stats.Expanded)
		}

		closed[key] = struct{}{}
		stats.Expanded++

		for _, next := range Successors(current) {
			stats.Generated++
			if _, reopened := open.offer(next); reopened {
				stats.Reopened++
			}
		}
	}

	return result, fmt.Errorf("%w: %d states expanded", ErrNoFeasiblePlan, stats.Expanded)
}
