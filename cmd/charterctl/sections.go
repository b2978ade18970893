package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sectionsCmd = &cobra.Command{
	Use:     "sections [charter-id]",
	Short:   "List recognized section names, or the stored sections of a charter",
	GroupID: "charters",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			names, err := charterClient.SectionNames(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, names)
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		}

		sections, err := charterClient.ListSections(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, sections)
		}
		if len(sections) == 0 {
			fmt.Fprintln(out, "no sections stored")
			return nil
		}
		return printSectionList(out, sections)
	},
}
