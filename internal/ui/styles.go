// Package ui renders human-readable terminal output.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/toba/linsync/internal/syncer"
	"github.com/toba/linsync/internal/task"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#6B7280") // Gray
	ColorSuccess   = lipgloss.Color("#10B981") // Green
	ColorWarning   = lipgloss.Color("#F59E0B") // Amber
	ColorDanger    = lipgloss.Color("#EF4444") // Red
	ColorMuted     = lipgloss.Color("#9CA3AF") // Light gray
	ColorBlue      = lipgloss.Color("#3B82F6") // Blue
)

// Text styles
var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Muted   = lipgloss.NewStyle().Foreground(ColorMuted)
	Primary = lipgloss.NewStyle().Foreground(ColorPrimary)
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Danger  = lipgloss.NewStyle().Foreground(ColorDanger)
)

// ID style - distinctive for task ids
var ID = lipgloss.NewStyle().
	Foreground(ColorPrimary).
	Bold(true)

// Identifier style for Linear identifiers (ENG-123)
var Identifier = lipgloss.NewStyle().Foreground(ColorBlue)

// Header style for section headers
var Header = lipgloss.NewStyle().
	Foreground(ColorPrimary).
	Bold(true)

// StatusIcon returns a Unicode icon for the given status.
func StatusIcon(s task.Status) string {
	switch s {
	case task.StatusInProgress:
		return "◔"
	case task.StatusDone:
		return "✔"
	default:
		return "○"
	}
}

// RenderStatus returns styled status text with its icon.
func RenderStatus(s task.Status) string {
	label := StatusIcon(s) + " " + string(s)
	switch s {
	case task.StatusTodo:
		return Success.Bold(true).Render(label)
	case task.StatusInProgress:
		return Warning.Bold(true).Render(label)
	case task.StatusDone:
		return lipgloss.NewStyle().Foreground(ColorSecondary).Render(label)
	default:
		return Muted.Render(label)
	}
}

// RenderPriority returns styled priority text. High is bold.
func RenderPriority(p task.Priority) string {
	switch p {
	case task.PriorityHigh:
		return Danger.Bold(true).Render(string(p))
	case task.PriorityMedium:
		return Warning.Render(string(p))
	default:
		return Muted.Render(string(p))
	}
}

// RenderTaskRow renders one line of a task list. maxTitle <= 0 disables
// truncation.
func RenderTaskRow(t *task.Task, maxTitle int) string {
	title := truncate(t.Title, maxTitle)
	parts := []string{
		ID.Render(t.ID),
		RenderStatus(t.Status),
		RenderPriority(t.Priority),
		title,
	}
	if ident := t.MetaString(task.MetaLinearIdentifier); ident != "" {
		parts = append(parts, Identifier.Render(ident))
	} else if t.RemoteID() != "" {
		parts = append(parts, Muted.Render("linked"))
	}
	return strings.Join(parts, "  ")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// RenderSyncResult renders a run summary followed by any errors.
func RenderSyncResult(r *syncer.Result) string {
	var b strings.Builder

	state := Success.Bold(true).Render("✔ sync " + string(r.Direction) + " finished")
	switch {
	case r.State == syncer.StateFailed:
		state = Danger.Bold(true).Render("✖ sync " + string(r.Direction) + " failed")
	case len(r.Errors) > 0:
		state = Warning.Bold(true).Render("! sync " + string(r.Direction) + " finished with errors")
	}
	b.WriteString(state)
	b.WriteString("\n")

	counts := []string{
		count("added", r.Added, Success),
		count("updated", r.Updated, Primary),
		count("skipped", r.Skipped, Muted),
		count("errors", len(r.Errors), Danger),
	}
	b.WriteString("  " + strings.Join(counts, Muted.Render(" · ")))
	if !r.FinishedAt.IsZero() && !r.StartedAt.IsZero() {
		b.WriteString(Muted.Render(fmt.Sprintf("  (%s)", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))))
	}
	b.WriteString("\n")

	for _, e := range r.Errors {
		b.WriteString("  " + Danger.Render(e.Code) + " " + e.Message + "\n")
	}
	return b.String()
}

func count(label string, n int, style lipgloss.Style) string {
	if n == 0 {
		return Muted.Render(fmt.Sprintf("%d %s", n, label))
	}
	return style.Bold(true).Render(fmt.Sprintf("%d", n)) + " " + label
}

// RenderLinkResult renders the outcome of link or unlink.
func RenderLinkResult(r *syncer.LinkResult) string {
	ref := r.Identifier
	if ref == "" {
		ref = r.RemoteID
	}
	switch r.Action {
	case syncer.ActionLinked:
		return Success.Render("✔ linked ") + ID.Render(r.TaskID) + " → " + Identifier.Render(ref)
	case syncer.ActionAlreadyLinked:
		return Muted.Render("already linked ") + ID.Render(r.TaskID) + " → " + Identifier.Render(ref)
	case syncer.ActionUnlinked:
		return Success.Render("✔ unlinked ") + ID.Render(r.TaskID) + Muted.Render(" (was "+ref+")")
	default:
		return Muted.Render("not linked ") + ID.Render(r.TaskID)
	}
}
