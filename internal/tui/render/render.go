// Package render draws the notification list of the session TUI.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/cristianoliveira/freshshell/internal/colors"
	"github.com/cristianoliveira/freshshell/internal/notify"
)

const (
	kindWidth            = 8
	actionWidth          = 10
	ageWidth             = 5
	spacesBetweenColumns = 6
	defaultTitleWidth    = 50
	exitingSymbol        = "…"
)

// HeaderState defines the inputs needed to render the header line.
type HeaderState struct {
	Origin string
	State  string
	Count  int
}

// RowState defines the inputs needed to render a notification row.
type RowState struct {
	Notification notify.Notification
	Width        int
	Selected     bool
	Now          time.Time
}

// FooterState defines the inputs needed to render footer help text.
type FooterState struct {
	HasAction bool
	Status    string
}

// Header renders the title line with the session's update state.
func Header(state HeaderState) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ansiColorNumber(colors.Blue)))

	title := "freshshell"
	if state.Origin != "" {
		title += "  " + state.Origin
	}
	return headerStyle.Render(fmt.Sprintf("%s  [%s]  %d notification(s)", title, state.State, state.Count))
}

// Row renders a single notification row.
func Row(state RowState) string {
	n := state.Notification
	rowStyle := kindStyle(n.Kind)
	if n.Exiting {
		rowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	}
	if state.Selected {
		rowStyle = rowStyle.Background(lipgloss.Color(ansiColorNumber(colors.Blue))).Foreground(lipgloss.Color("0"))
	}

	titleWidth := calculateTitleWidth(state.Width)
	if state.Width == 0 || titleWidth < 10 {
		titleWidth = defaultTitleWidth
	}

	title := n.Title
	if n.Body != "" {
		title += ": " + n.Body
	}
	if n.Exiting {
		title += " " + exitingSymbol
	}

	action := ""
	if n.Action != nil {
		action = "[" + n.Action.Label + "]"
	}

	row := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s",
		kindWidth, kindIcon(n.Kind),
		titleWidth, truncate(title, titleWidth),
		actionWidth, truncate(action, actionWidth),
		ageWidth, calculateAge(n.CreatedAt, state.Now),
	)
	return rowStyle.Render(row)
}

// Empty renders the placeholder shown when no notification is live.
func Empty() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("No notifications")
}

// Footer renders the footer with help text.
func Footer(state FooterState) string {
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	help := []string{"j/k: move", "x: dismiss"}
	if state.HasAction {
		help = append(help, "Enter: run action")
	}
	help = append(help, "q: quit")
	footer := strings.Join(help, "  |  ")
	if state.Status != "" {
		footer = state.Status + "  " + footer
	}
	return helpStyle.Render(footer)
}

func calculateTitleWidth(width int) int {
	return width - kindWidth - actionWidth - ageWidth - spacesBetweenColumns
}

func kindStyle(kind notify.Kind) lipgloss.Style {
	style := lipgloss.NewStyle()
	switch kind {
	case notify.KindError:
		return style.Foreground(lipgloss.Color(ansiColorNumber(colors.Red)))
	case notify.KindWarning:
		return style.Foreground(lipgloss.Color(ansiColorNumber(colors.Yellow)))
	case notify.KindSuccess:
		return style.Foreground(lipgloss.Color(ansiColorNumber(colors.Green)))
	default:
		return style.Foreground(lipgloss.Color(ansiColorNumber(colors.Cyan)))
	}
}

func kindIcon(kind notify.Kind) string {
	switch kind {
	case notify.KindError:
		return "❌ err"
	case notify.KindWarning:
		return "⚠️ wrn"
	case notify.KindSuccess:
		return "✓ ok"
	case notify.KindInfo, "":
		return "ℹ️ inf"
	default:
		s := string(kind)
		if len(s) > 3 {
			s = s[:3]
		}
		return "ℹ️ " + s
	}
}

func truncate(value string, width int) string {
	if width <= 0 || utf8.RuneCountInString(value) <= width {
		return value
	}
	if width <= 3 {
		return string([]rune(value)[:width])
	}
	return string([]rune(value)[:width-3]) + "..."
}

func calculateAge(created, now time.Time) string {
	if created.IsZero() {
		return ""
	}
	if now.IsZero() {
		now = time.Now()
	}

	duration := now.Sub(created)
	if duration < 0 {
		duration = 0
	}

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	return fmt.Sprintf("%dd", int(duration.Hours()/24))
}

// ansiColorNumber extracts the color number from an ANSI escape sequence.
// Example: "\033[0;34m" -> "34"
func ansiColorNumber(ansi string) string {
	if len(ansi) < 2 {
		return ""
	}
	lastSemicolon := strings.LastIndex(ansi, ";")
	if lastSemicolon == -1 {
		return ""
	}
	return ansi[lastSemicolon+1 : len(ansi)-1]
}
