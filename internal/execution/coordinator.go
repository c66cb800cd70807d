// Package execution drives analysis submissions through their lifecycle on
// the remote execution manager.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/labexec/internal/metrics"
	"github.com/me/labexec/pkg/model"
)

// SubmissionStore persists submissions. UpdateSubmission is an atomic
// read-modify-write: it fails with model.ConflictError when sub.Version is
// stale and increments sub.Version on success.
type SubmissionStore interface {
	GetSubmission(ctx context.Context, id string) (*model.AnalysisSubmission, error)
	UpdateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error
}

// ResultsStore persists the outputs of completed analyses.
type ResultsStore interface {
	SaveResults(ctx context.Context, res *model.AnalysisResults) error
}

// DefinitionRegistry resolves workflow definitions by id.
type DefinitionRegistry interface {
	GetDefinition(ctx context.Context, id string) (*model.WorkflowDefinition, error)
}

// Preparer stages a submission's inputs remotely.
type Preparer interface {
	Prepare(ctx context.Context, sub *model.AnalysisSubmission) (*model.PreparedWorkspace, error)
}

// JobClient is the part of the remote job client the coordinator drives.
type JobClient interface {
	Submit(ctx context.Context, def *model.WorkflowDefinition, ws *model.PreparedWorkspace) (model.RemoteJobHandle, error)
	Status(ctx context.Context, historyID string) (*model.WorkflowStatus, error)
	Outputs(ctx context.Context, handle model.RemoteJobHandle) ([]model.WorkflowOutputReference, error)

	// Deletes are used to discard resources whose ids could not be recorded.
	DeleteHistory(ctx context.Context, historyID string) error
	DeleteLibrary(ctx context.Context, libraryID string) error
	DeleteWorkflow(ctx context.Context, workflowID string) error
}

// Coordinator is the analysis state machine. It never retries and never
// moves a submission backwards; retry cadence belongs to the caller, which
// must run at most one operation per submission at a time.
//
// Operations update the submission passed in only after the change has been
// persisted.
type Coordinator struct {
	subs      SubmissionStore
	results   ResultsStore
	registry  DefinitionRegistry
	preparer  Preparer
	client    JobClient
	observers model.Observers
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers an observer for persisted transitions.
func WithObserver(o model.Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, o) }
}

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(subs SubmissionStore, results ResultsStore, registry DefinitionRegistry, preparer Preparer, client JobClient, opts ...Option) *Coordinator {
	c := &Coordinator{
		subs:     subs,
		results:  results,
		registry: registry,
		preparer: preparer,
		client:   client,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "coordinator")
	return c
}

// ExecuteAnalysis prepares the inputs of a NEW submission and submits it.
// On success the submission is SUBMITTED with its remote ids set. Any
// failure moves it to ERROR and returns the classified error: validation
// errors as they are, everything else as a SubmissionError.
func (c *Coordinator) ExecuteAnalysis(ctx context.Context, sub *model.AnalysisSubmission) (*model.AnalysisSubmission, error) {
	if sub.State != model.AnalysisStateNew || sub.RemoteAnalysisID != "" {
		return sub, &model.InvalidStateError{
			SubmissionID: sub.ID,
			Op:           "execute analysis",
			State:        string(sub.State),
			Want:         "NEW without remote analysis id",
		}
	}
	logger := c.logger.With("submission_id", sub.ID, "workflow_id", sub.WorkflowID)

	if err := c.transition(ctx, sub, model.AnalysisStatePreparing, nil); err != nil {
		return sub, err
	}

	ws, err := c.preparer.Prepare(ctx, sub)
	if err != nil {
		if !model.IsValidation(err) {
			err = &model.SubmissionError{SubmissionID: sub.ID, Op: "prepare", Err: err}
		}
		logger.Warn("preparation failed", "error", err)
		return sub, c.fail(ctx, sub, err)
	}

	// Persist the library id right away so a failed submit stays cleanable.
	if ws.LibraryID != "" {
		err := c.apply(ctx, sub, func(w *model.AnalysisSubmission) error {
			return w.SetRemoteInputDataID(ws.LibraryID)
		})
		if err != nil {
			logger.Error("library id could not be recorded", "library_id", ws.LibraryID, "error", err)
			c.discard(ctx, sub.ID, model.RemoteJobHandle{}, ws.LibraryID)
			return sub, c.fail(ctx, sub, &model.SubmissionError{SubmissionID: sub.ID, Op: "record library", Err: err})
		}
	}

	def, err := c.registry.GetDefinition(ctx, sub.WorkflowID)
	if err != nil {
		return sub, c.fail(ctx, sub, &model.SubmissionError{SubmissionID: sub.ID, Op: "load workflow", Err: err})
	}

	handle, err := c.client.Submit(ctx, def, ws)
	if err != nil {
		var se *model.SubmissionError
		if !errors.As(err, &se) {
			err = &model.SubmissionError{SubmissionID: sub.ID, Op: "submit", Err: err}
		}
		logger.Warn("submission failed", "error", err)
		return sub, c.fail(ctx, sub, err)
	}

	err = c.transition(ctx, sub, model.AnalysisStateSubmitted, func(w *model.AnalysisSubmission) error {
		return errors.Join(
			w.SetRemoteAnalysisID(handle.HistoryID),
			w.SetRemoteWorkflowID(handle.WorkflowID),
			w.SetRemoteInvocationID(handle.InvocationID),
		)
	})
	if err != nil {
		logger.Error("submitted job could not be recorded",
			"history_id", handle.HistoryID,
			"workflow_id", handle.WorkflowID,
			"invocation_id", handle.InvocationID,
			"error", err,
		)
		// The library id is already recorded; cleanup removes it later.
		c.discard(ctx, sub.ID, handle, "")
		return sub, c.fail(ctx, sub, &model.SubmissionError{SubmissionID: sub.ID, Op: "record submission", Err: err})
	}
	logger.Info("analysis submitted", "history_id", handle.HistoryID)
	return sub, nil
}

// GetWorkflowStatus polls the remote job of a submission. It is safe to call
// repeatedly: a RUNNING job whose progress did not change writes nothing.
// From SUBMITTED or RUNNING a completed job moves the submission to
// COMPLETING and a failed job to ERROR; in other states the status is only
// reported. A status that cannot be determined is a StatusUnavailableError
// and never changes the submission.
func (c *Coordinator) GetWorkflowStatus(ctx context.Context, sub *model.AnalysisSubmission) (*model.WorkflowStatus, error) {
	st, err := c.QueryWorkflowStatus(ctx, sub)
	if err != nil {
		return nil, err
	}

	if sub.State != model.AnalysisStateSubmitted && sub.State != model.AnalysisStateRunning {
		return st, nil
	}

	switch st.State {
	case model.CanonicalCompleted:
		err = c.transition(ctx, sub, model.AnalysisStateCompleting, func(w *model.AnalysisSubmission) error {
			w.Progress = st.Proportion
			return nil
		})
	case model.CanonicalError:
		// A failed job is a successful poll; only a failed write surfaces.
		err = c.markError(ctx, sub, fmt.Sprintf("remote workflow failed (state %s)", st.RemoteState))
	default:
		if sub.State == model.AnalysisStateSubmitted {
			err = c.transition(ctx, sub, model.AnalysisStateRunning, func(w *model.AnalysisSubmission) error {
				w.Progress = st.Proportion
				return nil
			})
		} else if st.Proportion != sub.Progress {
			err = c.apply(ctx, sub, func(w *model.AnalysisSubmission) error {
				w.Progress = st.Proportion
				return nil
			})
		}
	}
	return st, err
}

// QueryWorkflowStatus reports the remote status of a submission without
// changing it. Callers outside the scheduler use it so that the scheduler
// stays the only writer of lifecycle transitions.
func (c *Coordinator) QueryWorkflowStatus(ctx context.Context, sub *model.AnalysisSubmission) (*model.WorkflowStatus, error) {
	if sub.RemoteAnalysisID == "" {
		return nil, &model.InvalidStateError{
			SubmissionID: sub.ID,
			Op:           "get workflow status",
			State:        string(sub.State),
			Want:         "a remote analysis id",
		}
	}

	st, err := c.client.Status(ctx, sub.RemoteAnalysisID)
	if err != nil {
		metrics.RecordPoll("")
		var su *model.StatusUnavailableError
		if !errors.As(err, &su) {
			err = &model.StatusUnavailableError{RemoteID: sub.RemoteAnalysisID, Err: err}
		}
		return nil, err
	}
	metrics.RecordPoll(string(st.State))
	return st, nil
}

// GetAnalysisResults collects the outputs of a COMPLETING submission, saves
// them and completes it. Any failure moves the submission to ERROR; outputs
// must then be treated as incomplete.
func (c *Coordinator) GetAnalysisResults(ctx context.Context, sub *model.AnalysisSubmission) (*model.AnalysisResults, error) {
	if sub.State != model.AnalysisStateCompleting {
		return nil, &model.InvalidStateError{
			SubmissionID: sub.ID,
			Op:           "get analysis results",
			State:        string(sub.State),
			Want:         string(model.AnalysisStateCompleting),
		}
	}
	logger := c.logger.With("submission_id", sub.ID)

	def, err := c.registry.GetDefinition(ctx, sub.WorkflowID)
	if err != nil {
		return nil, c.fail(ctx, sub, fmt.Errorf("load workflow %s: %w", sub.WorkflowID, err))
	}

	handle := model.RemoteJobHandle{
		HistoryID:    sub.RemoteAnalysisID,
		WorkflowID:   sub.RemoteWorkflowID,
		InvocationID: sub.RemoteInvocationID,
	}
	outs, err := c.client.Outputs(ctx, handle)
	if err != nil {
		var ou *model.OutputsUnavailableError
		if !errors.As(err, &ou) {
			err = &model.OutputsUnavailableError{RemoteID: handle.HistoryID, Reason: "fetch", Err: err}
		}
		logger.Warn("outputs unavailable", "error", err)
		return nil, c.fail(ctx, sub, err)
	}

	have := make(map[string]bool, len(outs))
	for _, o := range outs {
		have[o.Label] = true
	}
	for _, label := range def.OutputLabels {
		if !have[label] {
			err := &model.OutputsUnavailableError{RemoteID: handle.HistoryID, Reason: fmt.Sprintf("output %q missing", label)}
			return nil, c.fail(ctx, sub, err)
		}
	}

	res := &model.AnalysisResults{
		ID:           "res_" + uuid.New().String(),
		SubmissionID: sub.ID,
		WorkflowType: def.Type,
		Outputs:      outs,
		CreatedAt:    c.now(),
	}
	if err := c.results.SaveResults(ctx, res); err != nil {
		return nil, c.fail(ctx, sub, fmt.Errorf("save results: %w", err))
	}

	if err := c.transition(ctx, sub, model.AnalysisStateCompleted, func(w *model.AnalysisSubmission) error {
		w.Progress = 1
		return nil
	}); err != nil {
		return nil, err
	}
	logger.Info("analysis completed", "outputs", len(outs))
	return res, nil
}

// AbandonPreparation moves a PREPARING submission whose preparation is no
// longer running to ERROR, so that any recorded remote resources become
// cleanable. Resources whose ids were never recorded cannot be reached.
func (c *Coordinator) AbandonPreparation(ctx context.Context, sub *model.AnalysisSubmission) (*model.AnalysisSubmission, error) {
	if sub.State != model.AnalysisStatePreparing {
		return sub, &model.InvalidStateError{
			SubmissionID: sub.ID,
			Op:           "abandon preparation",
			State:        string(sub.State),
			Want:         string(model.AnalysisStatePreparing),
		}
	}
	c.logger.Warn("abandoning interrupted preparation",
		"submission_id", sub.ID,
		"library_id", sub.RemoteInputDataID,
		"since", sub.UpdatedAt,
	)
	if err := c.markError(ctx, sub, "preparation interrupted"); err != nil {
		return sub, err
	}
	return sub, nil
}

// discard deletes remote resources of a submission whose ids could not be
// persisted: the history, then the workflow, then the library.
func (c *Coordinator) discard(ctx context.Context, subID string, handle model.RemoteJobHandle, libraryID string) {
	ctx = context.WithoutCancel(ctx)
	steps := []struct {
		kind string
		id   string
		del  func(context.Context, string) error
	}{
		{"history", handle.HistoryID, c.client.DeleteHistory},
		{"workflow", handle.WorkflowID, c.client.DeleteWorkflow},
		{"library", libraryID, c.client.DeleteLibrary},
	}
	for _, s := range steps {
		if s.id == "" {
			continue
		}
		if err := s.del(ctx, s.id); err != nil {
			c.logger.Warn("discard: delete failed", "submission_id", subID, "kind", s.kind, "remote_id", s.id, "error", err)
		}
	}
}

// apply mutates a copy of sub, persists it and, on success, copies the
// result back into sub.
func (c *Coordinator) apply(ctx context.Context, sub *model.AnalysisSubmission, mutate func(w *model.AnalysisSubmission) error) error {
	w := sub.Clone()
	if err := mutate(w); err != nil {
		return err
	}
	w.UpdatedAt = c.now()
	if err := c.subs.UpdateSubmission(ctx, w); err != nil {
		return err
	}
	*sub = *w
	return nil
}

// transition moves sub to next, applying mutate in the same write, and
// notifies observers once persisted.
func (c *Coordinator) transition(ctx context.Context, sub *model.AnalysisSubmission, next model.AnalysisState, mutate func(w *model.AnalysisSubmission) error) error {
	from := sub.State
	err := c.apply(ctx, sub, func(w *model.AnalysisSubmission) error {
		if mutate != nil {
			if err := mutate(w); err != nil {
				return err
			}
		}
		return w.TransitionTo(next)
	})
	if err != nil {
		return err
	}
	c.notify(ctx, sub, from, next, sub.ErrorMessage)
	return nil
}

// markError moves sub to ERROR recording reason.
func (c *Coordinator) markError(ctx context.Context, sub *model.AnalysisSubmission, reason string) error {
	return c.transition(ctx, sub, model.AnalysisStateError, func(w *model.AnalysisSubmission) error {
		w.ErrorMessage = reason
		return nil
	})
}

// fail moves sub to ERROR and returns cause. When recording the failure
// itself fails, both errors are returned.
func (c *Coordinator) fail(ctx context.Context, sub *model.AnalysisSubmission, cause error) error {
	if err := c.markError(ctx, sub, cause.Error()); err != nil {
		c.logger.Error("recording failure", "submission_id", sub.ID, "cause", cause, "error", err)
		return errors.Join(cause, fmt.Errorf("persist submission: %w", err))
	}
	return cause
}

func (c *Coordinator) notify(ctx context.Context, sub *model.AnalysisSubmission, from, to model.AnalysisState, reason string) {
	t := model.Transition{
		SubmissionID: sub.ID,
		Track:        model.TrackAnalysis,
		From:         string(from),
		To:           string(to),
		At:           sub.UpdatedAt,
	}
	if to == model.AnalysisStateError {
		t.Reason = reason
	}
	c.logger.Debug("transition", "submission_id", sub.ID, "from", from, "to", to)
	c.observers.OnTransition(ctx, t)
}
