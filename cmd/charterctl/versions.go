package main

import (
	"fmt"
	"strconv"

	"github.com/alfredjeanlab/charters/internal/client"
	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:     "versions <charter-id>",
	Short:   "List a charter's version history",
	GroupID: "history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		oldest, _ := cmd.Flags().GetBool("oldest-first")

		req := &client.ListVersionsRequest{Limit: limit, Offset: offset}
		if oldest {
			req.Order = "asc"
		}
		resp, err := charterClient.ListVersions(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		return printVersionList(cmd.OutOrStdout(), resp)
	},
}

var versionCmd = &cobra.Command{
	Use:     "version <charter-id> <n>",
	Short:   "Print the document snapshot of one version",
	GroupID: "history",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("version must be a positive integer, got %q", args[1])
		}
		v, err := charterClient.GetVersion(cmd.Context(), args[0], n)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, v)
		}
		fmt.Fprintf(out, "Version %d of %s by %s at %s\n", v.Version, v.CharterID, v.VersionBy, formatTime(v.VersionAt))
		fmt.Fprintf(out, "sha256 %s\n\n", v.SnapshotSHA256)
		printDocument(out, v.Snapshot)
		return nil
	},
}

func init() {
	versionsCmd.Flags().Int("limit", 20, "maximum number of versions")
	versionsCmd.Flags().Int("offset", 0, "versions to skip")
	versionsCmd.Flags().Bool("oldest-first", false, "list from version 1 upward")
}
