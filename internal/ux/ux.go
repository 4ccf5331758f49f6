// Package ux renders microfactory's human-readable CLI output with
// lipgloss styling, narrowed to the handful of styles `status` actually
// needs.
package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorDone    = lipgloss.Color("#2CD7C7")
	colorFailed  = lipgloss.Color("#E74C3C")
	colorPending = lipgloss.Color("#F4D03F")
	colorMuted   = lipgloss.Color("#6C7A89")
)

var (
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleDone    = lipgloss.NewStyle().Foreground(colorDone)
	styleFailed  = lipgloss.NewStyle().Foreground(colorFailed).Bold(true)
	stylePending = lipgloss.NewStyle().Foreground(colorPending)
)

// statusStyle picks the color a step/session status renders in. Step
// statuses ("Done", "Failed", "AwaitingSolutionVote", ...) and session
// statuses ("completed", "failed", "paused", ...) use different casing
// and vocabularies, so this matches on substring rather than an exact
// enum from either type.
func statusStyle(status string) lipgloss.Style {
	lower := strings.ToLower(status)
	switch {
	case strings.Contains(lower, "done"), strings.Contains(lower, "completed"):
		return styleDone
	case strings.Contains(lower, "failed"):
		return styleFailed
	case strings.Contains(lower, "paused"), strings.Contains(lower, "awaiting"):
		return stylePending
	default:
		return styleMuted
	}
}

// SessionHeader renders the one-line session summary `status` prints
// above its step tree.
func SessionHeader(sessionID, status, domain, provider, model string) string {
	return fmt.Sprintf("%s %s %s",
		styleHeader.Render("session "+sessionID+":"),
		statusStyle(status).Render(status),
		styleMuted.Render(fmt.Sprintf("(domain=%s provider=%s model=%s)", domain, provider, model)))
}

// WaitState renders a paused session's wait-state line.
func WaitState(stepID, trigger, details string) string {
	return stylePending.Render(fmt.Sprintf("paused at step %s: %s (%s)", stepID, trigger, details))
}

// Step renders one step row in the status tree, indented by depth.
func Step(stepID, status string, depth int, description string) string {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	return fmt.Sprintf("%s%s %s %s", indent,
		statusStyle(status).Render("["+status+"]"),
		stepID,
		styleMuted.Render(description))
}

// SessionRow renders one line of the `status` session-listing table.
func SessionRow(id, status, domain, provider string) string {
	return fmt.Sprintf("%s\t%s\t%s\t%s", id, statusStyle(status).Render(status), domain, provider)
}
