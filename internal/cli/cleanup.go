package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/labexec/pkg/model"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <submission_id>",
		Short: "Request deletion of a finished submission's remote resources",
		Long:  "Mark a COMPLETED or ERROR submission for cleanup. The server deletes its remote history, library and workflow in the background.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Put(cmd.Context(), "/api/v1/submissions/"+args[0]+"/cleanup", nil)
			if err != nil {
				return fmt.Errorf("cleanup submission: %w", err)
			}
			sub, err := decode[model.AnalysisSubmission](resp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submission %s: cleanup %s\n", sub.ID, sub.CleanedState)
			return nil
		},
	}
}
