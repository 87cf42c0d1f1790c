package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/applytrack/internal/theme"
)

// Layout splits the terminal into a header line, a content area and a
// status bar line.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentHeight returns the rows left for content between the header and
// the status bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-2, 0)
}

// Header renders the title on the left and status on the right.
func (l Layout) Header(title, status string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Render(status)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		fill(theme.HeaderStyle, l.Width-lipgloss.Width(left)-lipgloss.Width(right)),
		right,
	)
}

// StatusBar renders keyboard hints across the full width.
func (l Layout) StatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		rendered,
		fill(theme.StatusBarStyle, l.Width-lipgloss.Width(rendered)),
	)
}

// Frame stacks header, content and status bar.
func (l Layout) Frame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// fill renders width blank cells in style's background.
func fill(style lipgloss.Style, width int) string {
	return lipgloss.NewStyle().
		Width(max(width, 0)).
		Background(style.GetBackground()).
		Render("")
}
