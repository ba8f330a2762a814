// Package ui renders store views for the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/open-schedule/schedule-client/internal/store"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "244", Dark: "242"})
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
	syncedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "40"})
	borderStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Renderer writes styled or plain text depending on the terminal.
type Renderer struct {
	plain bool
}

// NewRenderer detects the terminal's color support.
func NewRenderer() *Renderer {
	return &Renderer{plain: termenv.EnvColorProfile() == termenv.Ascii}
}

// NewPlainRenderer always renders unstyled text, for piped output.
func NewPlainRenderer() *Renderer {
	return &Renderer{plain: true}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

// syncBadge marks whether the entity has a server-assigned id yet.
func (r *Renderer) syncBadge(globalID int32) string {
	if globalID == 0 {
		return r.style(pendingStyle, "local")
	}
	return r.style(syncedStyle, fmt.Sprintf("#%d", globalID))
}

// Tables renders a one-line-per-table listing.
func (r *Renderer) Tables(tables []store.TableView) string {
	if len(tables) == 0 {
		return r.style(dimStyle, "no tables") + "\n"
	}

	var b strings.Builder
	for _, t := range tables {
		fmt.Fprintf(&b, "%3d  %s  %s  %s\n",
			t.LocalID,
			r.syncBadge(t.GlobalID),
			r.style(titleStyle, t.Name),
			r.style(dimStyle, fmt.Sprintf("%d tasks", len(t.Tasks))))
	}
	return b.String()
}

// Table renders one table with its tasks, comments and grants. userName
// resolves author ids to display names and may return "".
func (r *Renderer) Table(t store.TableView, userName func(int32) string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", r.style(titleStyle, t.Name), r.syncBadge(t.GlobalID))
	if t.Description != "" {
		fmt.Fprintln(&b, r.style(dimStyle, t.Description))
	}

	for _, task := range t.Tasks {
		fmt.Fprintf(&b, "\n  %3d  %s  %s\n", task.LocalID, r.syncBadge(task.GlobalID), r.style(titleStyle, task.Name))
		if task.Description != "" {
			fmt.Fprintf(&b, "       %s\n", r.style(dimStyle, task.Description))
		}
		if span := renderSpan(task); span != "" {
			fmt.Fprintf(&b, "       %s\n", r.style(dimStyle, span))
		}
		for _, c := range task.Comments {
			fmt.Fprintf(&b, "       - %s %s\n", r.style(dimStyle, r.author(c.UserID, userName)+":"), c.Text)
		}
	}

	if len(t.Permissions) > 0 {
		fmt.Fprintf(&b, "\n%s\n", r.style(dimStyle, "access"))
		for userID, p := range t.Permissions {
			fmt.Fprintf(&b, "  %s: %s\n", r.author(userID, userName), p)
		}
	}
	return b.String()
}

// Status renders the daemon status panel.
func (r *Renderer) Status(state string, userID int32, tables, pending int) string {
	lines := fmt.Sprintf("state    %s\nuser     %d\ntables   %d\npending  %d",
		state, userID, tables, pending)
	if r.plain {
		return lines + "\n"
	}
	return borderStyle.Render(lines) + "\n"
}

func (r *Renderer) author(userID int32, userName func(int32) string) string {
	if userName != nil {
		if name := userName(userID); name != "" {
			return name
		}
	}
	return fmt.Sprintf("user %d", userID)
}

func renderSpan(task store.TaskView) string {
	var parts []string
	if task.StartDate != "" || task.EndDate != "" {
		parts = append(parts, strings.TrimSpace(task.StartDate+" .. "+task.EndDate))
	}
	if task.StartTime != "" || task.EndTime != "" {
		parts = append(parts, strings.TrimSpace(task.StartTime+"-"+task.EndTime))
	}
	if task.Period > 0 {
		parts = append(parts, fmt.Sprintf("every %d days", task.Period))
	}
	return strings.Join(parts, "  ")
}
