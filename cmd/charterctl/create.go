package main

import (
	"fmt"

	"github.com/alfredjeanlab/charters/internal/client"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:     "create --file <doc.json|doc.yaml>",
	Short:   "Store a newly generated charter",
	GroupID: "charters",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		project, _ := cmd.Flags().GetString("project")
		outputRef, _ := cmd.Flags().GetString("output-ref")
		seed, _ := cmd.Flags().GetBool("seed-sections")

		doc, err := readDocument(file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		resp, err := charterClient.CreateCharter(cmd.Context(), &client.CreateCharterRequest{
			ProjectID:    project,
			CreatedBy:    actor,
			Document:     doc,
			OutputRef:    outputRef,
			SeedSections: seed,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, resp)
		}
		fmt.Fprintf(out, "Created charter %s (project %s)\n", resp.Charter.ID, resp.Charter.ProjectID)
		if len(resp.Sections) > 0 {
			fmt.Fprintf(out, "Seeded %d sections\n", len(resp.Sections))
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("file", "f", "", "document file, or - for stdin (required)")
	createCmd.Flags().String("project", "", "project id (random when empty)")
	createCmd.Flags().String("output-ref", "", "reference to the rendered output")
	createCmd.Flags().Bool("seed-sections", false, "store every recognized section found in the document")
	_ = createCmd.MarkFlagRequired("file")
}
