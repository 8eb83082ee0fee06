// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/ballast/services/balance"
	"github.com/AleutianAI/ballast/services/balance/grid"
	"github.com/AleutianAI/ballast/services/balance/planner"
)

const cellWidth = 5

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	statsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	doneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))

	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	voidStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("236")).Background(lipgloss.Color("236"))
	crateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	sourceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("40"))
	targetStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("160"))
)

func (m StepperModel) render() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(RenderBay(m.view))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func (m StepperModel) renderHeader() string {
	title := titleStyle.Render(m.view.Manifest)
	stats := fmt.Sprintf("  %d min", m.view.TotalTime)
	if m.view.Cached {
		stats += " (archived plan)"
	}
	return title + statsStyle.Render(stats)
}

func (m StepperModel) renderStatus() string {
	v := m.view
	if v.NumSteps == 0 {
		return doneStyle.Render("Ship is already balanced. Nothing to move.")
	}
	if v.AllDone {
		return doneStyle.Render(fmt.Sprintf("All %d steps done. Outbound manifest: %s", v.NumSteps, v.Outbound))
	}
	progress := statsStyle.Render(fmt.Sprintf("[%d/%d] ", v.CurrentStep+1, v.NumSteps))
	return progress + DescribeStep(v.Steps[v.CurrentStep])
}

// DescribeStep renders one crane operation as an instruction.
func DescribeStep(s planner.Step) string {
	switch s.Kind {
	case planner.StepRelocate:
		return fmt.Sprintf("Move %s (%d kg) from %s to %s, %d min", s.Crate, s.Weight, cellName(s.From), cellName(s.To), s.Cost)
	case planner.StepReposition:
		return fmt.Sprintf("Move empty crane from %s to %s, %d min", cellName(s.From), cellName(s.To), s.Cost)
	case balance.StepPark:
		return fmt.Sprintf("Move crane from %s to %s", cellName(s.From), cellName(s.To))
	default:
		return s.Action.String()
	}
}

func cellName(c grid.Cell) string {
	if c == balance.ParkCell {
		return "park"
	}
	return c.String()
}

// RenderBay draws the bay top row first with the park cell above it.
func RenderBay(v *balance.GridResponse) string {
	var b strings.Builder

	park := styleFor(v.ParkCell, crateStyle).Render(pad("PARK"))
	fmt.Fprintf(&b, "   %s\n", park)

	for row := grid.Rows; row >= 1; row-- {
		fmt.Fprintf(&b, "%02d ", row)
		for col := 1; col <= grid.Cols; col++ {
			idx := grid.Cell{Row: row, Col: col}.Index()
			if idx < len(v.Cells) {
				b.WriteString(renderCell(v.Cells[idx]))
			}
			if col == grid.PortCols {
				b.WriteString(" |")
			}
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}

	b.WriteString("   ")
	for col := 1; col <= grid.Cols; col++ {
		b.WriteString(pad(fmt.Sprintf("%02d", col)))
		if col == grid.PortCols {
			b.WriteString("  ")
		}
		b.WriteString(" ")
	}
	b.WriteString("\n")
	return b.String()
}

func renderCell(c balance.CellView) string {
	var text string
	base := crateStyle
	switch c.Label {
	case grid.LabelEmpty:
		text, base = ".", emptyStyle
	case grid.LabelVoid:
		text, base = "", voidStyle
	default:
		text = c.Label
	}
	return styleFor(c.Colour, base).Render(pad(text))
}

func styleFor(colour balance.Colour, base lipgloss.Style) lipgloss.Style {
	switch colour {
	case balance.ColourSource:
		return sourceStyle
	case balance.ColourTarget:
		return targetStyle
	default:
		return base
	}
}

// pad truncates or centres text to the cell width.
func pad(text string) string {
	r := []rune(text)
	if len(r) > cellWidth {
		r = r[:cellWidth]
	}
	left := (cellWidth - len(r)) / 2
	right := cellWidth - len(r) - left
	return strings.Repeat(" ", left) + string(r) + strings.Repeat(" ", right)
}
