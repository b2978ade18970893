package main

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List charters, most recently modified first",
	GroupID: "charters",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		charters, err := charterClient.ListCharters(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), charters)
		}
		return printCharterList(cmd.OutOrStdout(), charters)
	},
}
