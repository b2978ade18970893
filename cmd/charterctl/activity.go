package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var editorsCmd = &cobra.Command{
	Use:     "editors <charter-id>",
	Short:   "Show who edited a charter recently",
	GroupID: "history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		editors, err := charterClient.Editors(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), editors)
		}
		return printEditors(cmd.OutOrStdout(), editors)
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events <charter-id>",
	Short:   "Show the recorded events of a charter",
	GroupID: "history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		evts, err := charterClient.GetEvents(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, evts)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tTOPIC\tACTOR")
		for _, e := range evts {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", formatTime(e.CreatedAt), e.Topic, e.Actor)
		}
		return tw.Flush()
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 20, "maximum number of events")
}
