package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/labexec/pkg/model"
)

func newStatusCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "status <submission_id>",
		Short: "Show the state of a submission",
		Long:  "Show the stored state of a submission. With --live the server polls the remote manager first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			out := cmd.OutOrStdout()

			if !live {
				resp, err := client.Get(cmd.Context(), "/api/v1/submissions/"+id)
				if err != nil {
					return fmt.Errorf("get submission: %w", err)
				}
				sub, err := decode[model.AnalysisSubmission](resp)
				if err != nil {
					return err
				}
				printSubmission(out, &sub)
				return nil
			}

			resp, err := client.Get(cmd.Context(), "/api/v1/submissions/"+id+"/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			st, err := decode[struct {
				Submission *model.AnalysisSubmission `json:"submission"`
				Workflow   *model.WorkflowStatus     `json:"workflow"`
			}](resp)
			if err != nil {
				return err
			}
			if st.Submission != nil {
				printSubmission(out, st.Submission)
			}
			if st.Workflow != nil {
				fmt.Fprintf(out, "  Remote:   %s (%s, %.0f%%)\n", st.Workflow.State, st.Workflow.RemoteState, st.Workflow.Proportion*100)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Poll the remote manager for the current status")
	return cmd
}

func printSubmission(out io.Writer, sub *model.AnalysisSubmission) {
	fmt.Fprintf(out, "Submission: %s\n", sub.ID)
	if sub.Name != "" {
		fmt.Fprintf(out, "  Name:     %s\n", sub.Name)
	}
	fmt.Fprintf(out, "  Workflow: %s\n", sub.WorkflowID)
	fmt.Fprintf(out, "  State:    %s\n", sub.State)
	fmt.Fprintf(out, "  Cleanup:  %s\n", sub.CleanedState)
	fmt.Fprintf(out, "  Progress: %.0f%%\n", sub.Progress*100)
	if sub.RemoteAnalysisID != "" {
		fmt.Fprintf(out, "  History:  %s\n", sub.RemoteAnalysisID)
	}
	if sub.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:    %s\n", sub.ErrorMessage)
	}
	fmt.Fprintf(out, "  Created:  %s\n", sub.CreatedAt.Format(time.RFC3339))
	if sub.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s\n", sub.CompletedAt.Format(time.RFC3339))
	}
}
