package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/boardlink/internal/transport"
)

// Panel draws content in a rounded box of the given outer width with title
// set into the top border and note right-aligned next to it. height 0 lets
// the box grow with content. An inactive panel, such as a monitor paused
// for an upload, gets a dim border.
//
//	╭─ Output ──────── autoscroll off ─╮
func Panel(title, note, content string, width, height int, active bool) string {
	borderColor := Subtle
	if active {
		borderColor = Primary
	}
	line := lipgloss.NewStyle().Foreground(borderColor)

	left := "╭─ " + title + " "
	right := "╮"
	if note != "" {
		right = " " + note + " ─╮"
	}
	fill := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	top := line.Render("╭─ ") + title + line.Render(" "+strings.Repeat("─", fill))
	if note != "" {
		top += " " + DimStyle.Render(note) + line.Render(" ─╮")
	} else {
		top += line.Render("╮")
	}

	// Width covers padding but not the border.
	body := lipgloss.NewStyle().
		Width(max(width-2, 0)).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderTop(false).
		BorderLeft(true).
		BorderRight(true).
		BorderBottom(true).
		BorderForeground(borderColor).
		Padding(0, 1)
	if height > 0 {
		body = body.Height(max(height-2, 0))
	}
	return top + "\n" + body.Render(content)
}

// Title renders a heading.
func Title(text string) string {
	return TitleStyle.Render(text)
}

// StatusKey renders one key hint.
func StatusKey(k, desc string) string {
	return StatusBarKeyStyle.Render(k) + StatusBarStyle.Render(":"+desc)
}

// KeyHints renders key hints given as key, description pairs.
func KeyHints(pairs ...string) string {
	hints := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		hints = append(hints, StatusKey(pairs[i], pairs[i+1]))
	}
	return strings.Join(hints, " ")
}

// Badge renders text on a colored background.
func Badge(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("230")).
		Background(color).
		Padding(0, 1).
		Render(text)
}

func SuccessBadge(text string) string { return Badge(text, Success) }

func ErrorBadge(text string) string { return Badge(text, Error) }

// PortBadge labels how a port is reached.
func PortBadge(kind transport.Kind) string {
	if kind == transport.Network {
		return Badge("NET", Secondary)
	}
	return Badge("SERIAL", Primary)
}
