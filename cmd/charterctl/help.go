package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/alfredjeanlab/charters/internal/ui"
	"github.com/spf13/cobra"
)

// helpRule restyles the parts of Cobra's help text matched by re. The
// styled group is always the last capture group; earlier groups are kept.
type helpRule struct {
	re     *regexp.Regexp
	render func(string) string
}

var helpRules = []helpRule{
	// Group and section headers such as "Charters:" or "Flags:".
	{regexp.MustCompile(`(?m)^()([A-Z][A-Za-z ]*:)[ \t]*$`), ui.RenderAccent},
	// Subcommand names in the command list.
	{regexp.MustCompile(`(?m)^(  )([a-z][\w-]*)(?:  )`), ui.RenderCommand},
	// Flag value types, e.g. "--limit int".
	{regexp.MustCompile(`(--[\w-]+ )(string|int|duration|stringSlice)\b`), ui.RenderMuted},
	// Defaults, e.g. (default "http://localhost:8080").
	{regexp.MustCompile(`()(\(default [^)]*\))`), ui.RenderMuted},
}

// colorizedHelpFunc renders Cobra's usage text, styling it when stdout is a
// color terminal.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			loc := rule.re.FindStringSubmatchIndex(match)
			n := len(loc)
			start, end := loc[n-2], loc[n-1]
			return match[:start] + rule.render(match[start:end]) + match[end:]
		})
	}
	return s
}
