package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout should get ANSI colors.
func ShouldUseColor() bool { return ColorFor(os.Stdout) }

// ColorFor applies NO_COLOR (https://no-color.org), CLICOLOR_FORCE=1,
// CLICOLOR=0 and TERM=dumb in that order, then falls back to whether f
// is a terminal.
func ColorFor(f *os.File) bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case envIs("CLICOLOR_FORCE", "1"):
		return true
	case envIs("CLICOLOR", "0"), envIs("TERM", "dumb"):
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// ConfigureColor turns rendering off for the process unless f gets color.
func ConfigureColor(f *os.File) {
	if !ColorFor(f) {
		ForceNoColor()
	}
}

func envIs(key, want string) bool {
	return strings.TrimSpace(os.Getenv(key)) == want
}
