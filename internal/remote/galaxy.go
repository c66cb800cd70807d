package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/me/labexec/internal/metrics"
	"github.com/me/labexec/pkg/galaxy"
	"github.com/me/labexec/pkg/model"
)

// GalaxyJobClient implements JobClient on top of the Galaxy REST API.
type GalaxyJobClient struct {
	caller      Caller
	resolver    Resolver
	callTimeout time.Duration
	logger      *slog.Logger

	// LinkFiles links file inputs in place as well as reference inputs.
	LinkFiles bool
}

// NewGalaxyJobClient creates a GalaxyJobClient. Every remote call is bounded
// by callTimeout; zero selects DefaultCallTimeout.
func NewGalaxyJobClient(caller Caller, resolver Resolver, callTimeout time.Duration, logger *slog.Logger) *GalaxyJobClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &GalaxyJobClient{
		caller:      caller,
		resolver:    resolver,
		callTimeout: callTimeout,
		logger:      logger.With("component", "galaxy-job-client"),
	}
}

// bounded runs fn with a context limited to the call timeout and records the
// outcome.
func (c *GalaxyJobClient) bounded(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	err := fn(ctx)
	metrics.ObserveRemoteCall(op, err)
	return err
}

// CreateLibrary creates a data library named name.
func (c *GalaxyJobClient) CreateLibrary(ctx context.Context, name string) (Library, error) {
	var lib *galaxy.Library
	err := c.bounded(ctx, "create_library", func(ctx context.Context) error {
		var err error
		lib, err = c.caller.CreateLibrary(ctx, name, "labexec inputs for "+name)
		return err
	})
	if err != nil {
		return Library{}, fmt.Errorf("create library %q: %w", name, err)
	}
	c.logger.Debug("library created", "library_id", lib.ID, "name", name)
	return Library{ID: lib.ID, RootFolderID: lib.RootFolderID}, nil
}

// UploadToLibrary registers a file or reference input in lib. File inputs are
// copied into the server unless LinkFiles is set; reference inputs are linked
// in place.
func (c *GalaxyJobClient) UploadToLibrary(ctx context.Context, lib Library, in model.InputReference) (string, error) {
	if in.Location == "" {
		return "", fmt.Errorf("input %q has no location", in.Role)
	}
	var ds *galaxy.LibraryDataset
	err := c.bounded(ctx, "upload", func(ctx context.Context) error {
		var err error
		ds, err = c.caller.UploadFromPath(ctx, galaxy.UploadPathInput{
			LibraryID: lib.ID,
			FolderID:  lib.RootFolderID,
			Path:      in.Location,
			LinkData:  c.LinkFiles || in.Kind == model.InputKindReference,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload input %q to library %s: %w", in.Role, lib.ID, err)
	}
	return ds.ID, nil
}

// Submit imports the workflow document, creates a history, copies the
// prepared library datasets into it and invokes the workflow. Remote objects
// created before a failure are deleted best-effort.
func (c *GalaxyJobClient) Submit(ctx context.Context, def *model.WorkflowDefinition, ws *model.PreparedWorkspace) (model.RemoteJobHandle, error) {
	var handle model.RemoteJobHandle
	fail := func(op string, err error) (model.RemoteJobHandle, error) {
		c.rollback(ctx, handle)
		return model.RemoteJobHandle{}, &model.SubmissionError{SubmissionID: ws.SubmissionID, Op: op, Err: err}
	}

	if len(def.Document) == 0 {
		return model.RemoteJobHandle{}, &model.SubmissionError{
			SubmissionID: ws.SubmissionID,
			Op:           "import workflow",
			Err:          fmt.Errorf("workflow %s has no document", def.ID),
		}
	}

	err := c.bounded(ctx, "import_workflow", func(ctx context.Context) error {
		wf, err := c.caller.ImportWorkflow(ctx, def.Document)
		if err == nil {
			handle.WorkflowID = wf.ID
		}
		return err
	})
	if err != nil {
		return fail("import workflow", err)
	}

	err = c.bounded(ctx, "create_history", func(ctx context.Context) error {
		h, err := c.caller.CreateHistory(ctx, ws.Name)
		if err == nil {
			handle.HistoryID = h.ID
		}
		return err
	})
	if err != nil {
		return fail("create history", err)
	}

	inputs := make(map[string]any, len(ws.Datasets)+len(ws.Parameters))
	for _, label := range sortedKeys(ws.Datasets) {
		var hda *galaxy.HistoryDataset
		err := c.bounded(ctx, "copy_dataset", func(ctx context.Context) error {
			var err error
			hda, err = c.caller.CopyLibraryDatasetToHistory(ctx, handle.HistoryID, ws.Datasets[label])
			return err
		})
		if err != nil {
			return fail("copy input "+label, err)
		}
		inputs[label] = galaxy.InvocationInput{Src: "hda", ID: hda.ID}
	}
	for label, v := range ws.Parameters {
		inputs[label] = v
	}

	err = c.bounded(ctx, "invoke_workflow", func(ctx context.Context) error {
		inv, err := c.caller.InvokeWorkflow(ctx, handle.WorkflowID, galaxy.InvokeRequest{
			HistoryID: handle.HistoryID,
			Inputs:    inputs,
		})
		if err == nil {
			handle.InvocationID = inv.ID
		}
		return err
	})
	if err != nil {
		return fail("invoke workflow", err)
	}

	c.logger.Info("workflow invoked",
		"submission_id", ws.SubmissionID,
		"history_id", handle.HistoryID,
		"workflow_id", handle.WorkflowID,
		"invocation_id", handle.InvocationID,
	)
	return handle, nil
}

func (c *GalaxyJobClient) rollback(ctx context.Context, handle model.RemoteJobHandle) {
	// The caller's context may already be done; rollback gets its own budget.
	ctx = context.WithoutCancel(ctx)
	if handle.HistoryID != "" {
		if err := c.DeleteHistory(ctx, handle.HistoryID); err != nil {
			c.logger.Warn("rollback: delete history failed", "history_id", handle.HistoryID, "error", err)
		}
	}
	if handle.WorkflowID != "" {
		if err := c.DeleteWorkflow(ctx, handle.WorkflowID); err != nil {
			c.logger.Warn("rollback: delete workflow failed", "workflow_id", handle.WorkflowID, "error", err)
		}
	}
}

// Status fetches the history state map and resolves it. Any failure,
// including an unknown or deleted history, is a StatusUnavailableError.
func (c *GalaxyJobClient) Status(ctx context.Context, historyID string) (*model.WorkflowStatus, error) {
	if historyID == "" {
		return nil, &model.StatusUnavailableError{RemoteID: historyID, Err: errors.New("empty history id")}
	}
	var h *galaxy.HistoryDetails
	err := c.bounded(ctx, "status", func(ctx context.Context) error {
		var err error
		h, err = c.caller.ShowHistory(ctx, historyID)
		return err
	})
	if err != nil {
		return nil, &model.StatusUnavailableError{RemoteID: historyID, Err: err}
	}
	if h.Deleted || h.Purged {
		return nil, &model.StatusUnavailableError{RemoteID: historyID, Err: errors.New("history has been deleted")}
	}
	return c.resolver.Resolve(h.State, h.StateIDs), nil
}

// Outputs lists the labelled outputs of a completed invocation. It fails with
// OutputsUnavailableError while the history or the invocation is still in
// progress.
func (c *GalaxyJobClient) Outputs(ctx context.Context, handle model.RemoteJobHandle) ([]model.WorkflowOutputReference, error) {
	if handle.HistoryID == "" || handle.InvocationID == "" {
		return nil, &model.OutputsUnavailableError{RemoteID: handle.HistoryID, Reason: "job was never invoked"}
	}

	st, err := c.Status(ctx, handle.HistoryID)
	if err != nil {
		return nil, &model.OutputsUnavailableError{RemoteID: handle.HistoryID, Reason: "status", Err: err}
	}
	if st.State != model.CanonicalCompleted {
		return nil, &model.OutputsUnavailableError{
			RemoteID: handle.HistoryID,
			Reason:   fmt.Sprintf("job is %s, not completed", st.State),
		}
	}

	var inv *galaxy.Invocation
	err = c.bounded(ctx, "outputs", func(ctx context.Context) error {
		var err error
		inv, err = c.caller.ShowInvocation(ctx, handle.InvocationID)
		return err
	})
	if err != nil {
		return nil, &model.OutputsUnavailableError{RemoteID: handle.HistoryID, Reason: "fetch invocation", Err: err}
	}
	if inv.State != galaxy.InvocationScheduled {
		return nil, &model.OutputsUnavailableError{
			RemoteID: handle.HistoryID,
			Reason:   fmt.Sprintf("invocation %s is %s", inv.ID, inv.State),
		}
	}

	labels := make([]string, 0, len(inv.Outputs))
	for label := range inv.Outputs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	refs := make([]model.WorkflowOutputReference, 0, len(labels))
	for _, label := range labels {
		out := inv.Outputs[label]
		refs = append(refs, model.WorkflowOutputReference{
			JobID:       inv.JobIDForOutput(label),
			OutputID:    out.ID,
			Label:       label,
			Name:        label,
			DownloadURL: c.caller.DatasetDownloadURL(out.ID),
		})
	}
	return refs, nil
}

// DeleteHistory deletes and purges a history.
func (c *GalaxyJobClient) DeleteHistory(ctx context.Context, historyID string) error {
	return c.idempotentDelete(ctx, "history", historyID, c.caller.DeleteHistory)
}

// DeleteLibrary deletes a data library.
func (c *GalaxyJobClient) DeleteLibrary(ctx context.Context, libraryID string) error {
	return c.idempotentDelete(ctx, "library", libraryID, c.caller.DeleteLibrary)
}

// DeleteWorkflow deletes an imported workflow.
func (c *GalaxyJobClient) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return c.idempotentDelete(ctx, "workflow", workflowID, c.caller.DeleteWorkflow)
}

func (c *GalaxyJobClient) idempotentDelete(ctx context.Context, kind, id string, del func(context.Context, string) error) error {
	err := c.bounded(ctx, "delete_"+kind, func(ctx context.Context) error {
		return del(ctx, id)
	})
	if err == nil {
		c.logger.Debug("remote resource deleted", "kind", kind, "id", id)
		return nil
	}
	if alreadyGone(err) {
		c.logger.Info("remote resource already deleted", "kind", kind, "id", id, "reason", err)
		return nil
	}
	return fmt.Errorf("delete %s %s: %w", kind, id, err)
}

// alreadyGone reports whether a delete failed only because the resource no
// longer exists.
func alreadyGone(err error) bool {
	if galaxy.IsNotFoundError(err) {
		return true
	}
	var httpErr *galaxy.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 400 {
		return strings.Contains(strings.ToLower(httpErr.Body), "already deleted")
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
