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
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// FormatLine renders one cell the way the port's manifests store it.
func FormatLine(cell grid.Cell, content grid.Content) string {
	return fmt.Sprintf("[%02d,%02d], {%05d}, %s", cell.Row, cell.Col, content.Weight, content.Label)
}

// Format writes g as a manifest, one line per cell in row-major order.
func Format(w io.Writer, g grid.Grid) error {
	bw := bufio.NewWriter(w)
	var err error
	g.Each(func(cell grid.Cell, content grid.Content) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintln(bw, FormatLine(cell, content))
	})
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return bw.Flush()
}

// WriteFile replaces the manifest at path with g.
func WriteFile(path string, g grid.Grid) error {
	var buf bytes.Buffer
	if err := Format(&buf, g); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
