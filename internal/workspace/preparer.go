// Package workspace stages a submission's inputs on the remote execution
// manager ahead of workflow submission.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/me/labexec/internal/remote"
	"github.com/me/labexec/pkg/model"
)

// DefinitionRegistry resolves workflow definitions by id.
type DefinitionRegistry interface {
	GetDefinition(ctx context.Context, id string) (*model.WorkflowDefinition, error)
}

// LibraryClient is the part of the remote job client preparation uses.
type LibraryClient interface {
	CreateLibrary(ctx context.Context, name string) (remote.Library, error)
	UploadToLibrary(ctx context.Context, lib remote.Library, in model.InputReference) (string, error)
	DeleteLibrary(ctx context.Context, libraryID string) error
}

// Preparer validates a submission's inputs against its workflow definition
// and registers them in a fresh remote library.
type Preparer struct {
	registry DefinitionRegistry
	client   LibraryClient
	logger   *slog.Logger
}

// NewPreparer creates a Preparer.
func NewPreparer(registry DefinitionRegistry, client LibraryClient, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Preparer{
		registry: registry,
		client:   client,
		logger:   logger.With("component", "workspace-preparer"),
	}
}

// plannedInput is a validated submission input bound to its remote label.
type plannedInput struct {
	ref   model.InputReference
	label string
	kind  model.InputKind
}

// Prepare validates sub and registers each uploaded input exactly once.
// Validation failures (MissingInputError, ValidationError) happen before any
// remote call. If a registration fails the library is deleted best-effort
// and no workspace is returned.
func (p *Preparer) Prepare(ctx context.Context, sub *model.AnalysisSubmission) (*model.PreparedWorkspace, error) {
	def, err := p.registry.GetDefinition(ctx, sub.WorkflowID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrNotFound {
			return nil, &model.ValidationError{
				SubmissionID: sub.ID,
				Message:      fmt.Sprintf("unknown workflow %q", sub.WorkflowID),
				Details:      []model.FieldError{{Field: "workflow_id", Message: "not registered"}},
			}
		}
		return nil, fmt.Errorf("load workflow %s: %w", sub.WorkflowID, err)
	}

	plan, err := plan(sub, def)
	if err != nil {
		return nil, err
	}

	ws := &model.PreparedWorkspace{
		SubmissionID: sub.ID,
		Name:         "labexec " + sub.ID,
		Datasets:     make(map[string]string),
		Parameters:   make(map[string]any),
	}

	var uploads []plannedInput
	for _, in := range plan {
		if in.kind.IsUploaded() {
			uploads = append(uploads, in)
			continue
		}
		v := in.ref.Value
		if v == nil {
			v = in.ref.Location
		}
		ws.Parameters[in.label] = v
	}
	if len(uploads) == 0 {
		return ws, nil
	}

	lib, err := p.client.CreateLibrary(ctx, ws.Name)
	if err != nil {
		return nil, fmt.Errorf("prepare submission %s: %w", sub.ID, err)
	}
	ws.LibraryID = lib.ID

	for _, in := range uploads {
		ref := in.ref
		ref.Kind = in.kind
		id, err := p.client.UploadToLibrary(ctx, lib, ref)
		if err != nil {
			p.rollback(ctx, sub.ID, lib.ID)
			return nil, fmt.Errorf("prepare submission %s: %w", sub.ID, err)
		}
		ws.Datasets[in.label] = id
	}

	p.logger.Info("workspace prepared",
		"submission_id", sub.ID,
		"library_id", lib.ID,
		"datasets", len(ws.Datasets),
		"parameters", len(ws.Parameters),
	)
	return ws, nil
}

func (p *Preparer) rollback(ctx context.Context, subID, libraryID string) {
	if err := p.client.DeleteLibrary(context.WithoutCancel(ctx), libraryID); err != nil {
		p.logger.Warn("rollback: delete library failed", "submission_id", subID, "library_id", libraryID, "error", err)
	}
}

// plan checks the submission inputs against the definition. It rejects
// duplicate and undeclared roles and reports the first missing required role
// in declaration order.
func plan(sub *model.AnalysisSubmission, def *model.WorkflowDefinition) ([]plannedInput, error) {
	var details []model.FieldError
	seen := make(map[string]bool, len(sub.Inputs))
	var out []plannedInput

	for _, ref := range sub.Inputs {
		if seen[ref.Role] {
			details = append(details, model.FieldError{Field: "inputs." + ref.Role, Message: "supplied more than once"})
			continue
		}
		seen[ref.Role] = true

		decl, ok := def.Input(ref.Role)
		if !ok {
			details = append(details, model.FieldError{Field: "inputs." + ref.Role, Message: "not an input of workflow " + def.ID})
			continue
		}
		kind := decl.Kind
		if kind == "" {
			kind = ref.Kind
		}
		if kind == "" {
			kind = model.InputKindFile
		}
		if kind.IsUploaded() && ref.Location == "" {
			details = append(details, model.FieldError{Field: "inputs." + ref.Role, Message: "location is required"})
			continue
		}
		out = append(out, plannedInput{ref: ref, label: decl.RemoteLabel(), kind: kind})
	}

	for _, role := range def.RequiredInputRoles() {
		if !seen[role] {
			return nil, &model.MissingInputError{SubmissionID: sub.ID, WorkflowID: def.ID, Role: role}
		}
	}
	if len(details) > 0 {
		return nil, &model.ValidationError{SubmissionID: sub.ID, Message: "invalid inputs", Details: details}
	}
	return out, nil
}
