// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest reads and writes the port's plain-text ship manifests.
//
// A manifest lists every one of the 96 bay cells, one per line:
//
//	[01,01], {00000}, NAN
//	[01,02], {00120}, Cat food
//	[01,03], {00000}, UNUSED
//
// Coordinates are zero-padded row and column, the weight is a five-digit
// field in braces, and the label is either a crate description or one of
// the sentinels NAN (not a usable slot) and UNUSED (empty slot).
package manifest

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// MaxWeight is the largest weight the five-digit field can hold.
const MaxWeight = 99999

// MaxLabelLength bounds crate descriptions.
const MaxLabelLength = 256

// Sentinel errors for manifest parsing.
var (
	// ErrMalformedLine indicates a line that is not "[RR,CC], {WWWWW}, LABEL".
	ErrMalformedLine = errors.New("malformed manifest line")

	// ErrCellCount indicates the manifest does not list every cell exactly once.
	ErrCellCount = errors.New("manifest must list 96 cells")

	// ErrDuplicateCell indicates two lines for the same coordinates.
	ErrDuplicateCell = errors.New("duplicate manifest cell")

	// ErrInvalidRecord indicates a well-formed line with out-of-range values.
	ErrInvalidRecord = errors.New("invalid manifest record")
)

// Record is one parsed manifest line.
type Record struct {
	Row    int    `validate:"min=1,max=8"`
	Col    int    `validate:"min=1,max=12"`
	Weight int    `validate:"min=0,max=99999"`
	Label  string `validate:"required,max=256"`
}

// Cell returns the record's coordinates.
func (r Record) Cell() grid.Cell {
	return grid.Cell{Row: r.Row, Col: r.Col}
}

// Content returns the record's cell content.
func (r Record) Content() grid.Content {
	return grid.Content{Weight: r.Weight, Label: r.Label}
}

var recordValidate = validator.New(validator.WithRequiredStructEnabled())

// CountContainers returns the number of crates on the ship.
func CountContainers(g *grid.Grid) int {
	return g.CrateCount()
}
