package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/labexec/pkg/model"
)

func newListCmd() *cobra.Command {
	var (
		state        string
		cleanedState string
		workflowID   string
		limit        int
		offset       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if state != "" {
				q.Set("state", state)
			}
			if cleanedState != "" {
				q.Set("cleaned_state", cleanedState)
			}
			if workflowID != "" {
				q.Set("workflow_id", workflowID)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/v1/submissions/"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := client.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("list submissions: %w", err)
			}
			subs, err := decode[[]*model.AnalysisSubmission](resp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No submissions found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-10s  %-12s  %-24s  %s\n", "ID", "STATE", "CLEANUP", "WORKFLOW", "CREATED")
			fmt.Fprintf(out, "%-40s  %-10s  %-12s  %-24s  %s\n", "----", "-----", "-------", "--------", "-------")
			for _, sub := range subs {
				fmt.Fprintf(out, "%-40s  %-10s  %-12s  %-24s  %s\n",
					sub.ID, sub.State, sub.CleanedState, sub.WorkflowID, sub.CreatedAt.Format(time.RFC3339))
			}

			fmt.Fprintf(out, "\n%s\n", summaryLine(model.ComputeSubmissionSummary(subs)))
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "(%d of %d shown)\n", len(subs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by analysis state")
	cmd.Flags().StringVar(&cleanedState, "cleaned-state", "", "Filter by cleanup state")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "Filter by workflow id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of submissions to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of submissions to skip")
	return cmd
}

// summaryLine renders the non-zero counts of a summary, e.g.
// "3 shown: 1 running, 2 completed".
func summaryLine(s model.SubmissionSummary) string {
	parts := []string{}
	for _, c := range []struct {
		n     int
		label string
	}{
		{s.New, "new"},
		{s.Preparing, "preparing"},
		{s.Submitted, "submitted"},
		{s.Running, "running"},
		{s.Completing, "completing"},
		{s.Completed, "completed"},
		{s.Error, "error"},
		{s.Cleaning, "cleaning"},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.label))
		}
	}
	return fmt.Sprintf("%d shown: %s", s.Total, strings.Join(parts, ", "))
}
