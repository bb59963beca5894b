package logging

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

// NewTable returns a table styled for w. Terminals get a rounded border, a
// bold header and striped rows. Writers without color support get bare
// columns separated by spaces, which keeps the output easy to grep.
func NewTable(w io.Writer) *ltable.Table {
	r := lipgloss.NewRenderer(w)
	cell := r.NewStyle().Padding(0, 1)

	if r.ColorProfile() == termenv.Ascii {
		return ltable.New().
			Border(lipgloss.HiddenBorder()).
			BorderTop(false).
			BorderBottom(false).
			BorderLeft(false).
			BorderRight(false).
			BorderHeader(false).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return cell.PaddingLeft(0)
				}
				return cell
			})
	}

	header := cell.Bold(true).Foreground(lipgloss.Color("12"))
	stripe := cell.Background(lipgloss.AdaptiveColor{Light: "254", Dark: "235"})
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == ltable.HeaderRow:
				return header
			case row%2 == 1:
				return stripe
			}
			return cell
		})
}
