package main

import (
	"errors"
	"fmt"

	"github.com/alfredjeanlab/charters/internal/client"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:     "update <charter-id> --file <doc.json|doc.yaml>",
	Short:   "Replace a charter's document and record a new version",
	GroupID: "charters",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		section, _ := cmd.Flags().GetString("section")

		doc, err := readDocument(file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		req := &client.UpdateCharterRequest{
			UserID:      actor,
			Document:    doc,
			SectionName: section,
		}
		if cmd.Flags().Changed("output-ref") {
			ref, _ := cmd.Flags().GetString("output-ref")
			req.OutputRef = &ref
		}
		if cmd.Flags().Changed("expected-version") {
			v, _ := cmd.Flags().GetInt("expected-version")
			req.ExpectedVersion = &v
		}

		res, err := charterClient.UpdateCharter(cmd.Context(), args[0], req)
		if err != nil {
			return describeUpdateError(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printUpdateResult(cmd.OutOrStdout(), res)
		return nil
	},
}

// describeUpdateError adds the schema field errors and a retry hint to a
// failed update.
func describeUpdateError(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.Message
	if apiErr.Kind != "" {
		msg = apiErr.Kind + ": " + msg
	}
	for _, fe := range apiErr.Fields {
		msg += fmt.Sprintf("\n  %s: %s", fe.Field, fe.Message)
	}
	if apiErr.Retryable {
		msg += "\nnothing was saved; the update can be retried as is"
	}
	return errors.New(msg)
}

func init() {
	updateCmd.Flags().StringP("file", "f", "", "document file, or - for stdin (required)")
	updateCmd.Flags().StringP("section", "s", "", "section the edit targets")
	updateCmd.Flags().String("output-ref", "", "new reference to the rendered output")
	updateCmd.Flags().Int("expected-version", 0, "fail unless this is the charter's latest version")
	_ = updateCmd.MarkFlagRequired("file")
}
