// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner computes crane plans that balance a ship's cargo.
//
// # Description
//
// Solve runs a best-first A* search over grid states. A state is a full grid
// snapshot; a move lifts the top crate of one column and drops it into the
// lowest unused slot of another column. The search stops at the first state
// whose Port/Starboard imbalance falls within the thresholds fixed from the
// root, then Reconstruct turns the parent chain into a Plan, inserting the
// idle crane travel between one drop-off and the next pickup.
//
// # Cost Model
//
//   - ImbalanceScore: |Port - Starboard| weight.
//   - Heuristic: greedy estimate of how many crates still have to move.
//   - MoveCost: gantry travel, lifting over any taller stack in between.
//
// The heuristic counts crates while g accumulates travel distance, so f mixes
// units. The search is best-first and plans are not guaranteed optimal.
//
// # Thread Safety
//
// Solve is synchronous and keeps all search structures private to the call.
// Concurrent calls on different grids are safe.
//
// # Limits
//
// The search has no built-in cap. Callers that need bounded latency set
// Options.MaxExpansions and treat ErrExpansionLimit as a failed search.
package planner
