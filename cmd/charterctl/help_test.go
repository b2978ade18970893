package main

import (
	"strings"
	"testing"

	"github.com/alfredjeanlab/charters/internal/ui"
)

func TestColorizeHelp(t *testing.T) {
	in := strings.Join([]string{
		"Usage:",
		"  charterctl [command]",
		"",
		"Charters:",
		"  show        Show a charter and its current document",
		"",
		"Flags:",
		"      --url string   HTTP server URL (default \"http://localhost:8080\")",
		"",
	}, "\n")

	got := colorizeHelp(in)
	for _, want := range []string{
		ui.RenderAccent("Charters:"),
		ui.RenderAccent("Flags:"),
		"  " + ui.RenderCommand("show") + "  ",
		"--url " + ui.RenderMuted("string"),
		ui.RenderMuted(`(default "http://localhost:8080")`),
	} {
		if !strings.Contains(got, want) {
			t.Errorf("colorized help missing %q\n%s", want, got)
		}
	}
	if !strings.Contains(got, "\n  charterctl [command]\n") {
		t.Errorf("usage line must be left alone:\n%s", got)
	}
}
