package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/labexec/pkg/model"
)

func newSubmitCmd() *cobra.Command {
	var (
		name        string
		inputsFile  string
		files       []string
		params      []string
		submittedBy string
	)

	cmd := &cobra.Command{
		Use:   "submit <workflow_id>",
		Short: "Submit an analysis",
		Long: `Create a submission for a registered workflow. Inputs are given as
repeated --input role=path and --param role=value flags, or as a YAML file:

  forward_reads: /data/sample_R1.fastq
  min_contig_length:
    kind: parameter
    value: 500`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inputs []model.InputReference
			if inputsFile != "" {
				fromFile, err := readInputsFile(inputsFile)
				if err != nil {
					return err
				}
				inputs = append(inputs, fromFile...)
			}
			for _, f := range files {
				role, loc, err := splitAssignment(f)
				if err != nil {
					return fmt.Errorf("--input: %w", err)
				}
				inputs = append(inputs, model.InputReference{Role: role, Kind: model.InputKindFile, Location: loc})
			}
			for _, p := range params {
				role, val, err := splitAssignment(p)
				if err != nil {
					return fmt.Errorf("--param: %w", err)
				}
				inputs = append(inputs, model.InputReference{Role: role, Kind: model.InputKindParameter, Value: val})
			}
			logger.Debug("submission inputs", "count", len(inputs))

			req := map[string]any{
				"name":         name,
				"workflow_id":  args[0],
				"inputs":       inputs,
				"submitted_by": submittedBy,
			}
			resp, err := client.Post(cmd.Context(), "/api/v1/submissions/", req)
			if err != nil {
				return fmt.Errorf("create submission: %w", err)
			}
			sub, err := decode[model.AnalysisSubmission](resp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submission created: %s\n", sub.ID)
			fmt.Fprintf(out, "  Workflow: %s\n", sub.WorkflowID)
			fmt.Fprintf(out, "  State:    %s\n", sub.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Submission name")
	cmd.Flags().StringVarP(&inputsFile, "inputs", "i", "", "YAML file mapping input roles to inputs")
	cmd.Flags().StringArrayVar(&files, "input", nil, "File input as role=path (repeatable)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Parameter input as role=value (repeatable)")
	cmd.Flags().StringVar(&submittedBy, "submitted-by", os.Getenv("USER"), "Submitter recorded on the submission")
	return cmd
}

func splitAssignment(s string) (string, string, error) {
	role, value, ok := strings.Cut(s, "=")
	if !ok || role == "" {
		return "", "", fmt.Errorf("expected role=value, got %q", s)
	}
	return role, value, nil
}

// inputEntry is the long form of an inputs file entry.
type inputEntry struct {
	Kind     model.InputKind `yaml:"kind"`
	Location string          `yaml:"location"`
	Value    any             `yaml:"value"`
}

// readInputsFile parses a YAML inputs file. A scalar string entry is a file
// location; a mapping entry spells out kind, location and value.
func readInputsFile(path string) ([]model.InputReference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse inputs: %w", err)
	}

	roles := make([]string, 0, len(raw))
	for role := range raw {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	inputs := make([]model.InputReference, 0, len(roles))
	for _, role := range roles {
		node := raw[role]
		switch node.Kind {
		case yaml.ScalarNode:
			inputs = append(inputs, model.InputReference{Role: role, Kind: model.InputKindFile, Location: node.Value})
		case yaml.MappingNode:
			var e inputEntry
			if err := node.Decode(&e); err != nil {
				return nil, fmt.Errorf("parse inputs: %s: %w", role, err)
			}
			if e.Kind == "" {
				e.Kind = model.InputKindFile
			}
			inputs = append(inputs, model.InputReference{Role: role, Kind: e.Kind, Location: e.Location, Value: e.Value})
		default:
			return nil, fmt.Errorf("parse inputs: %s: expected a path or a mapping", role)
		}
	}
	return inputs, nil
}
