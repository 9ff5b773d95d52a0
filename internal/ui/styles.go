// Package ui holds the terminal styling shared by bctl commands.
package ui

import (
	"fmt"

	"github.com/alfredjeanlab/budgets/internal/budget"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 221 // yellow
	colorSoft   = 208 // orange
	colorHard   = 203 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderWarning colors s by the severity of a spend warning band.
func RenderWarning(level budget.WarningLevel, s string) string {
	switch level {
	case budget.WarningWarn:
		return render(colorWarn, s)
	case budget.WarningSoftThrottle:
		return render(colorSoft, s)
	case budget.WarningHardFreeze:
		return render(colorHard, s)
	default:
		return render(colorOK, s)
	}
}

// RenderStatus colors a cycle or segment-cycle status.
func RenderStatus(status string) string {
	switch status {
	case "approved":
		return render(colorOK, status)
	case "throttled":
		return render(colorSoft, status)
	case "killed":
		return render(colorHard, status)
	case "pending", "pending_approval":
		return render(colorWarn, status)
	default:
		return RenderMuted(status)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
