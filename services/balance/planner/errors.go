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

import "errors"

// Sentinel errors for the planner.
var (
	// ErrMalformedGrid indicates the root grid failed validation.
	ErrMalformedGrid = errors.New("malformed grid")

	// ErrNoFeasiblePlan indicates the frontier emptied without a goal state.
	ErrNoFeasiblePlan = errors.New("no feasible plan")

	// ErrExpansionLimit indicates the caller's expansion cap was reached.
	ErrExpansionLimit = errors.New("expansion limit reached")
)
