package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/labexec/pkg/model"
)

func newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows [workflow_id]",
		Short: "List registered workflows, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				resp, err := client.Get(cmd.Context(), "/api/v1/workflows/"+args[0])
				if err != nil {
					return fmt.Errorf("get workflow: %w", err)
				}
				def, err := decode[model.WorkflowDefinition](resp)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Workflow: %s\n", def.ID)
				fmt.Fprintf(out, "  Name:    %s\n", def.Name)
				fmt.Fprintf(out, "  Type:    %s\n", def.Type)
				if def.Version != "" {
					fmt.Fprintf(out, "  Version: %s\n", def.Version)
				}
				fmt.Fprintln(out, "  Inputs:")
				for _, in := range def.Inputs {
					kind := in.Kind
					if kind == "" {
						kind = model.InputKindFile
					}
					req := ""
					if in.Required {
						req = " (required)"
					}
					fmt.Fprintf(out, "    - %s [%s]%s\n", in.Role, kind, req)
				}
				if len(def.OutputLabels) > 0 {
					fmt.Fprintf(out, "  Outputs: %s\n", strings.Join(def.OutputLabels, ", "))
				}
				return nil
			}

			resp, err := client.Get(cmd.Context(), "/api/v1/workflows/")
			if err != nil {
				return fmt.Errorf("list workflows: %w", err)
			}
			defs, err := decode[[]model.WorkflowDefinition](resp)
			if err != nil {
				return err
			}
			if len(defs) == 0 {
				fmt.Fprintln(out, "No workflows registered.")
				return nil
			}
			fmt.Fprintf(out, "%-24s  %-14s  %s\n", "ID", "TYPE", "NAME")
			fmt.Fprintf(out, "%-24s  %-14s  %s\n", "--", "----", "----")
			for _, d := range defs {
				fmt.Fprintf(out, "%-24s  %-14s  %s\n", d.ID, d.Type, d.Name)
			}
			return nil
		},
	}
}
