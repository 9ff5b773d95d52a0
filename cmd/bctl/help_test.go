package main

import "testing"

func TestColorizeHelpOutput_NoColor(t *testing.T) {
	captureStdout(t) // forces no color

	in := "Budgets:\n  cycle       Manage budget cycles\n\nFlags:\n      --server string   gRPC server address (default \"localhost:9090\")\n"
	if got := colorizeHelpOutput(in); got != in {
		t.Errorf("colorizeHelpOutput changed text with color disabled:\n%q", got)
	}
}

func TestRootCommandGroups(t *testing.T) {
	want := map[string]string{
		"cycle":    "budgets",
		"segment":  "budgets",
		"spend":    "budgets",
		"simulate": "forecast",
		"funnel":   "forecast",
		"events":   "views",
		"watch":    "views",
		"serve":    "system",
		"health":   "system",
		"config":   "system",
		"remote":   "system",
	}
	for _, c := range rootCmd.Commands() {
		if g, ok := want[c.Name()]; ok {
			if c.GroupID != g {
				t.Errorf("%s: group %q, want %q", c.Name(), c.GroupID, g)
			}
			delete(want, c.Name())
		}
	}
	for name := range want {
		t.Errorf("command %q not registered", name)
	}
}
