package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/labexec/pkg/model"
)

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <submission_id>",
		Short: "List the outputs of a completed submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/submissions/"+args[0]+"/results")
			if err != nil {
				return fmt.Errorf("get results: %w", err)
			}
			res, err := decode[model.AnalysisResults](resp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Results: %s (%s)\n", res.SubmissionID, res.WorkflowType)
			if len(res.Outputs) == 0 {
				fmt.Fprintln(out, "  No outputs.")
				return nil
			}
			for _, o := range res.Outputs {
				fmt.Fprintf(out, "  - %s: %s\n", o.Label, o.DownloadURL)
			}
			return nil
		},
	}
}
