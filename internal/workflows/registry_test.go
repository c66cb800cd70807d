package workflows

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/labexec/pkg/model"
)

const assemblyYAML = `id: wf_assembly
name: Genome assembly
type: assembly
version: "1.2"
document: assembly.ga
inputs:
  - role: forward_reads
    label: Forward reads
    required: true
  - role: reverse_reads
    label: Reverse reads
    required: true
  - role: min_contig_length
    kind: parameter
outputs: [contigs, assembly_report]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assembly.yaml", assemblyYAML)
	writeFile(t, dir, "assembly.ga", `{"a_galaxy_workflow": "true", "name": "assembly"}`)
	writeFile(t, dir, "README.md", "ignored")

	r, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	def, err := r.GetDefinition(context.Background(), "wf_assembly")
	if err != nil {
		t.Fatalf("GetDefinition() error = %v", err)
	}
	if def.Type != "assembly" || def.Version != "1.2" {
		t.Errorf("unexpected definition %+v", def)
	}
	roles := def.RequiredInputRoles()
	if len(roles) != 2 || roles[0] != "forward_reads" || roles[1] != "reverse_reads" {
		t.Errorf("RequiredInputRoles() = %v", roles)
	}
	if in, _ := def.Input("forward_reads"); in.RemoteLabel() != "Forward reads" {
		t.Errorf("RemoteLabel() = %q", in.RemoteLabel())
	}
	if in, _ := def.Input("min_contig_length"); in.Kind != model.InputKindParameter {
		t.Errorf("min_contig_length kind = %q", in.Kind)
	}
	if len(def.OutputLabels) != 2 {
		t.Errorf("OutputLabels = %v", def.OutputLabels)
	}
	if !strings.Contains(string(def.Document), "a_galaxy_workflow") {
		t.Errorf("Document not loaded: %s", def.Document)
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("List() len = %d, want 1", got)
	}
}

func TestLoadDir_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "missing document",
			files: map[string]string{"a.yaml": "id: a\ntype: t\ndocument: missing.ga\n"},
		},
		{
			name:  "no document field",
			files: map[string]string{"a.yaml": "id: a\ntype: t\n"},
		},
		{
			name:  "invalid document",
			files: map[string]string{"a.yaml": "id: a\ntype: t\ndocument: a.ga\n", "a.ga": "not json"},
		},
		{
			name: "duplicate id",
			files: map[string]string{
				"a.yaml": "id: a\ntype: t\ndocument: a.ga\n",
				"b.yaml": "id: a\ntype: t\ndocument: a.ga\n",
				"a.ga":   "{}",
			},
		},
		{
			name: "duplicate role",
			files: map[string]string{
				"a.yaml": "id: a\ntype: t\ndocument: a.ga\ninputs:\n  - role: r\n  - role: r\n",
				"a.ga":   "{}",
			},
		},
		{
			name: "bad kind",
			files: map[string]string{
				"a.yaml": "id: a\ntype: t\ndocument: a.ga\ninputs:\n  - role: r\n    kind: blob\n",
				"a.ga":   "{}",
			},
		},
		{
			name:  "malformed yaml",
			files: map[string]string{"a.yaml": "id: [unclosed\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			if _, err := LoadDir(dir); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestGetDefinition_NotFound(t *testing.T) {
	_, err := NewRegistry().GetDefinition(context.Background(), "nope")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestList_Sorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"wf_c", "wf_a", "wf_b"} {
		if err := r.Add(&model.WorkflowDefinition{ID: id, Type: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	list := r.List()
	if list[0].ID != "wf_a" || list[2].ID != "wf_c" {
		t.Errorf("List() not sorted: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestLoadDir_Shipped(t *testing.T) {
	r, err := LoadDir(filepath.Join("..", "..", "workflows"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	def, err := r.GetDefinition(context.Background(), "wf_assembly")
	if err != nil {
		t.Fatalf("GetDefinition() error = %v", err)
	}
	if got := def.RequiredInputRoles(); len(got) != 2 {
		t.Errorf("required roles = %v", got)
	}
	in, ok := def.Input("min_contig_length")
	if !ok || in.RemoteLabel() != "Minimum contig length" {
		t.Errorf("min_contig_length = %+v", in)
	}
	if len(def.Document) == 0 {
		t.Error("document not loaded")
	}
}
