// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// ParseLine parses a single manifest line.
//
// The label is everything after the third comma, so descriptions may
// themselves contain commas.
func ParseLine(line string) (Record, error) {
	parts := strings.SplitN(line, ",", 4)
	if len(parts) != 4 {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	rowField := strings.TrimSpace(parts[0])
	colField := strings.TrimSpace(parts[1])
	weightField := strings.TrimSpace(parts[2])
	if !strings.HasPrefix(rowField, "[") || !strings.HasSuffix(colField, "]") ||
		!strings.HasPrefix(weightField, "{") || !strings.HasSuffix(weightField, "}") {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	row, err := strconv.Atoi(strings.TrimPrefix(rowField, "["))
	if err != nil {
		return Record{}, fmt.Errorf("%w: row in %q", ErrMalformedLine, line)
	}
	col, err := strconv.Atoi(strings.TrimSuffix(colField, "]"))
	if err != nil {
		return Record{}, fmt.Errorf("%w: column in %q", ErrMalformedLine, line)
	}
	weight, err := strconv.Atoi(strings.Trim(weightField, "{} "))
	if err != nil {
		return Record{}, fmt.Errorf("%w: weight in %q", ErrMalformedLine, line)
	}

	rec := Record{
		Row:    row,
		Col:    col,
		Weight: weight,
		Label:  strings.TrimSpace(parts[3]),
	}
	if err := recordValidate.Struct(rec); err != nil {
		return Record{}, fmt.Errorf("%w: %q: %w", ErrInvalidRecord, line, err)
	}
	return rec, nil
}

// Parse reads a full manifest into a grid.
//
// # Description
//
// Every non-blank line must parse with ParseLine, each of the 96 cells must
// appear exactly once, and the resulting grid must pass grid.Validate.
// Lines may appear in any order.
//
// # Inputs
//
//   - r: Manifest text. CRLF line endings are accepted.
//
// # Outputs
//
//   - grid.Grid: The bay as described by the manifest.
//   - error: ErrMalformedLine, ErrInvalidRecord, ErrDuplicateCell,
//     ErrCellCount, or a grid validation error.
func Parse(r io.Reader) (grid.Grid, error) {
	g := grid.New()
	var seen [grid.Size]bool
	count := 0

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := ParseLine(line)
		if err != nil {
			return grid.Grid{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cell := rec.Cell()
		if seen[cell.Index()] {
			return grid.Grid{}, fmt.Errorf("line %d: %w: %s", lineNo, ErrDuplicateCell, cell)
		}
		seen[cell.Index()] = true
		count++

		if err := g.Set(cell, rec.Content()); err != nil {
			return grid.Grid{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return grid.Grid{}, fmt.Errorf("reading manifest: %w", err)
	}

	if count != grid.Size {
		return grid.Grid{}, fmt.Errorf("%w: found %d", ErrCellCount, count)
	}
	if err := g.Validate(); err != nil {
		return grid.Grid{}, err
	}
	return g, nil
}

// ParseString parses a manifest held in memory.
func ParseString(text string) (grid.Grid, error) {
	return Parse(strings.NewReader(text))
}

// ReadFile parses the manifest stored at path.
func ReadFile(path string) (grid.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return grid.Grid{}, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	g, err := Parse(f)
	if err != nil {
		return grid.Grid{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
