package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/tinyrange/plic/internal/devices/plicdev"
	"github.com/tinyrange/plic/internal/kernel"
	"github.com/tinyrange/plic/internal/plic"
)

var stateStyles = map[plicdev.State]ansi.Style{
	plicdev.Idle:      ansi.Style{}.ForegroundColor(ansi.Green),
	plicdev.Pending:   ansi.Style{}.ForegroundColor(ansi.Yellow),
	plicdev.InService: ansi.Style{}.Bold().ForegroundColor(ansi.Red),
}

// writeStateTable prints one row per board source with its priority and its
// state on every hart.
func writeStateTable(w io.Writer, m *kernel.Machine, color bool) error {
	header := []string{"source", "id", "prio"}
	for _, h := range m.Harts() {
		header = append(header, fmt.Sprintf("hart%d (t=%d)", h.ID(), h.Controller().Threshold()))
	}
	rows := [][]string{header}

	for _, s := range m.Board().Sources {
		src := plic.SourceID(s.ID)
		row := []string{s.Name, fmt.Sprint(s.ID)}
		harts := m.Harts()
		if len(harts) > 0 {
			row = append(row, fmt.Sprint(harts[0].Controller().Priority(src)))
		} else {
			row = append(row, "-")
		}
		for _, h := range harts {
			if !h.Controller().Enabled(src) {
				row = append(row, "masked")
				continue
			}
			state := m.PLIC().State(h.ID(), src)
			cell := state.String()
			if color {
				cell = stateStyles[state].String() + cell + ansi.ResetStyle
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}

	for _, row := range rows {
		var sb strings.Builder
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
			sb.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)))
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " ")); err != nil {
			return err
		}
	}
	return nil
}
