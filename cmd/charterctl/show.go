package main

import (
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <charter-id>",
	Short:   "Show a charter and its current document",
	GroupID: "charters",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		section, _ := cmd.Flags().GetString("section")

		if section != "" {
			sec, err := charterClient.GetSection(ctx, args[0], section)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, sec)
			}
			printDocument(out, sec.SectionJSON)
			return nil
		}

		ch, err := charterClient.GetCharter(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, ch)
		}
		brief, _ := cmd.Flags().GetBool("brief")
		printCharter(out, ch, !brief)
		return nil
	},
}

func init() {
	showCmd.Flags().String("section", "", "show only the stored row for this section")
	showCmd.Flags().Bool("brief", false, "omit the document")
}
