// Package remote is the narrow job-control surface the orchestration core
// uses to drive the remote workflow execution manager.
package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/me/labexec/internal/status"
	"github.com/me/labexec/pkg/galaxy"
	"github.com/me/labexec/pkg/model"
)

// DefaultCallTimeout bounds each remote call when no timeout is configured.
const DefaultCallTimeout = 60 * time.Second

// JobClient submits, queries and tears down remote workflow jobs.
type JobClient interface {
	// CreateLibrary creates a container for a submission's input datasets.
	CreateLibrary(ctx context.Context, name string) (Library, error)

	// UploadToLibrary registers one input in lib and returns its dataset id.
	UploadToLibrary(ctx context.Context, lib Library, in model.InputReference) (string, error)

	// Submit imports the workflow, creates a history holding the prepared
	// inputs and invokes the workflow in it.
	Submit(ctx context.Context, def *model.WorkflowDefinition, ws *model.PreparedWorkspace) (model.RemoteJobHandle, error)

	// Status returns the canonical status of the job running in historyID.
	Status(ctx context.Context, historyID string) (*model.WorkflowStatus, error)

	// Outputs lists the outputs of a completed job.
	Outputs(ctx context.Context, handle model.RemoteJobHandle) ([]model.WorkflowOutputReference, error)

	// Deletes succeed when the resource is already gone.
	DeleteHistory(ctx context.Context, historyID string) error
	DeleteLibrary(ctx context.Context, libraryID string) error
	DeleteWorkflow(ctx context.Context, workflowID string) error
}

// Library identifies a remote data library and the folder uploads go to.
type Library struct {
	ID           string
	RootFolderID string
}

// Caller abstracts the Galaxy transport for testability.
type Caller interface {
	CreateHistory(ctx context.Context, name string) (*galaxy.History, error)
	ShowHistory(ctx context.Context, historyID string) (*galaxy.HistoryDetails, error)
	DeleteHistory(ctx context.Context, historyID string) error
	CopyLibraryDatasetToHistory(ctx context.Context, historyID, libraryDatasetID string) (*galaxy.HistoryDataset, error)

	CreateLibrary(ctx context.Context, name, description string) (*galaxy.Library, error)
	DeleteLibrary(ctx context.Context, libraryID string) error
	UploadFromPath(ctx context.Context, in galaxy.UploadPathInput) (*galaxy.LibraryDataset, error)

	ImportWorkflow(ctx context.Context, document json.RawMessage) (*galaxy.StoredWorkflow, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error
	InvokeWorkflow(ctx context.Context, workflowID string, req galaxy.InvokeRequest) (*galaxy.Invocation, error)
	ShowInvocation(ctx context.Context, invocationID string) (*galaxy.Invocation, error)

	DatasetDownloadURL(datasetID string) string
}

var _ Caller = (*galaxy.Client)(nil)

// Resolver maps raw remote state onto canonical workflow status.
type Resolver interface {
	Resolve(overall string, items map[string][]string) *model.WorkflowStatus
}

var _ Resolver = (*status.Resolver)(nil)
