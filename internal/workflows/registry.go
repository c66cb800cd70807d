// Package workflows loads the workflow definitions labexec can run.
//
// Each definition is a YAML file:
//
//	id: wf_assembly
//	name: Genome assembly
//	type: assembly
//	version: "1.2"
//	document: assembly.ga      # remote workflow document, relative to this file
//	inputs:
//	  - role: forward_reads
//	    label: Forward reads
//	    required: true
//	  - role: min_contig_length
//	    kind: parameter
//	outputs: [contigs, assembly_report]
package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/me/labexec/pkg/model"
)

// definitionFile is the on-disk form of a workflow definition.
type definitionFile struct {
	model.WorkflowDefinition `yaml:",inline"`

	DocumentPath string `yaml:"document"`
}

// Registry holds workflow definitions keyed by id.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*model.WorkflowDefinition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*model.WorkflowDefinition)}
}

// LoadDir loads every *.yaml and *.yml file in dir. Duplicate ids, invalid
// definitions and unreadable documents are load errors.
func LoadDir(dir string) (*Registry, error) {
	r := NewRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err := r.Add(def); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return r, nil
}

// LoadFile parses one definition file and reads the document it names.
func LoadFile(path string) (*model.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.DocumentPath == "" {
		return nil, fmt.Errorf("%s: document is required", path)
	}
	docPath := f.DocumentPath
	if !filepath.IsAbs(docPath) {
		docPath = filepath.Join(filepath.Dir(path), docPath)
	}
	doc, err := os.ReadFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("%s: read document: %w", path, err)
	}
	if !json.Valid(doc) {
		return nil, fmt.Errorf("%s: document %s is not valid JSON", path, f.DocumentPath)
	}

	def := f.WorkflowDefinition
	def.Document = json.RawMessage(doc)
	return &def, nil
}

// Add validates def and registers it.
func (r *Registry) Add(def *model.WorkflowDefinition) error {
	if err := Validate(def); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.ID]; ok {
		return fmt.Errorf("duplicate workflow id %q", def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// Validate checks that def is usable: it has an id, a type, and unique input
// roles and remote labels.
func Validate(def *model.WorkflowDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	if def.Type == "" {
		return fmt.Errorf("workflow %s: type is required", def.ID)
	}
	roles := make(map[string]bool, len(def.Inputs))
	labels := make(map[string]bool, len(def.Inputs))
	for _, in := range def.Inputs {
		if in.Role == "" {
			return fmt.Errorf("workflow %s: input without role", def.ID)
		}
		switch in.Kind {
		case "", model.InputKindFile, model.InputKindReference, model.InputKindParameter:
		default:
			return fmt.Errorf("workflow %s: input %s: unknown kind %q", def.ID, in.Role, in.Kind)
		}
		if roles[in.Role] {
			return fmt.Errorf("workflow %s: duplicate input role %q", def.ID, in.Role)
		}
		roles[in.Role] = true
		if labels[in.RemoteLabel()] {
			return fmt.Errorf("workflow %s: duplicate input label %q", def.ID, in.RemoteLabel())
		}
		labels[in.RemoteLabel()] = true
	}
	return nil
}

// GetDefinition returns the definition with the given id.
func (r *Registry) GetDefinition(_ context.Context, id string) (*model.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return nil, model.NewNotFoundError("workflow", id)
	}
	return def, nil
}

// List returns all definitions ordered by id.
func (r *Registry) List() []*model.WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.WorkflowDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
