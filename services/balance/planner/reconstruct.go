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
	"slices"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// StepKind distinguishes cargo moves from empty crane travel.
type StepKind string

const (
	// StepRelocate carries a crate from one cell to another.
	StepRelocate StepKind = "relocate"

	// StepReposition moves the empty crane to the next pickup.
	StepReposition StepKind = "reposition"
)

// Step is one crane operation of a plan.
type Step struct {
	Action `yaml:",inline"`

	Kind StepKind `json:"kind" yaml:"kind"`
	Cost int      `json:"cost" yaml:"cost"`

	// Crate is the label of the carried crate. Empty for repositioning.
	Crate string `json:"crate,omitempty" yaml:"crate,omitempty"`

	// Weight is the weight of the carried crate.
	Weight int `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Plan is an ordered list of crane operations.
type Plan struct {
	Steps []Step `json:"steps" yaml:"steps"`

	// TotalCost sums relocation and repositioning costs.
	TotalCost int `json:"total_cost" yaml:"total_cost"`

	// RelocationCosts lists the cost of each relocation, in order.
	RelocationCosts []int `json:"relocation_costs" yaml:"relocation_costs"`
}

// Relocations returns the number of crates the plan moves.
func (p Plan) Relocations() int {
	return len(p.RelocationCosts)
}

// RepositionCost returns the part of TotalCost spent travelling empty.
func (p Plan) RepositionCost() int {
	cost := p.TotalCost
	for _, c := range p.RelocationCosts {
		cost -= c
	}
	return cost
}

// Apply returns g with every relocation of the plan carried out.
func (p Plan) Apply(g grid.Grid) grid.Grid {
	for _, step := range p.Steps {
		if step.Kind == StepRelocate {
			g.Swap(step.From, step.To)
		}
	}
	return g
}

// Reconstruct turns a goal state's ancestry into a plan.
//
// # Description
//
// Walks from goal to the root collecting one relocation per link. Between
// two consecutive relocations it inserts a repositioning step from the
// older drop-off to the newer pickup, costed against the grid the newer
// relocation started from. The result is in root-to-goal order.
//
// # Inputs
//
//   - goal: The terminal state. A root state yields an empty plan.
//
// # Outputs
//
//   - Plan: Steps, TotalCost and the per-relocation costs.
func Reconstruct(goal *State) Plan {
	plan := Plan{Steps: []Step{}, RelocationCosts: []int{}}

	var newer *State
	for node := goal; node.Parent != nil; node = node.Parent {
		if newer != nil {
			travel := Action{From: node.Action.To, To: newer.Action.From}
			cost := MoveCost(&newer.Parent.Grid, travel)
			plan.Steps = append(plan.Steps, Step{Action: travel, Kind: StepReposition, Cost: cost})
			plan.TotalCost += cost
		}

		cargo := node.Parent.Grid.At(node.Action.From)
		plan.Steps = append(plan.Steps, Step{
			Action: node.Action,
			Kind:   StepRelocate,
			Cost:   node.Cost,
			Crate:  cargo.Label,
			Weight: cargo.Weight,
		})
		plan.RelocationCosts = append(plan.RelocationCosts, node.Cost)
		plan.TotalCost += node.Cost
		newer = node
	}

	slices.Reverse(plan.Steps)
	slices.Reverse(plan.RelocationCosts)
	return plan
}
