// Package cleanup tears down the remote resources of finished submissions.
package cleanup

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/me/labexec/internal/metrics"
	"github.com/me/labexec/pkg/model"
)

// SubmissionStore persists submissions; see execution.SubmissionStore.
type SubmissionStore interface {
	UpdateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error
}

// Deleter removes remote resources. Deleting a resource that no longer
// exists must succeed.
type Deleter interface {
	DeleteHistory(ctx context.Context, historyID string) error
	DeleteLibrary(ctx context.Context, libraryID string) error
	DeleteWorkflow(ctx context.Context, workflowID string) error
}

// Worker deletes the remote history, library and workflow of a submission
// marked CLEANING.
type Worker struct {
	subs      SubmissionStore
	remote    Deleter
	observers model.Observers
	logger    *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(subs SubmissionStore, remote Deleter, logger *slog.Logger, observers ...model.Observer) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{
		subs:      subs,
		remote:    remote,
		observers: observers,
		logger:    logger.With("component", "cleanup"),
	}
}

// Cleanup deletes, in order, the history, library and workflow recorded on
// sub, skipping empty ids. Every delete is attempted even when an earlier
// one fails. On full success sub becomes CLEANED; otherwise it stays
// CLEANING and a CleanupError lists each failed delete.
func (w *Worker) Cleanup(ctx context.Context, sub *model.AnalysisSubmission) (*model.AnalysisSubmission, error) {
	if sub.CleanedState != model.CleanedStateCleaning {
		return sub, &model.InvalidStateError{
			SubmissionID: sub.ID,
			Op:           "cleanup",
			State:        string(sub.CleanedState),
			Want:         string(model.CleanedStateCleaning),
		}
	}
	logger := w.logger.With("submission_id", sub.ID)

	steps := []struct {
		id  string
		del func(context.Context, string) error
	}{
		{sub.RemoteAnalysisID, w.remote.DeleteHistory},
		{sub.RemoteInputDataID, w.remote.DeleteLibrary},
		{sub.RemoteWorkflowID, w.remote.DeleteWorkflow},
	}

	var errs []error
	attempted := 0
	for _, s := range steps {
		if s.id == "" {
			continue
		}
		attempted++
		if err := s.del(ctx, s.id); err != nil {
			logger.Warn("remote delete failed", "remote_id", s.id, "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		err := &model.CleanupError{SubmissionID: sub.ID, Errs: errs}
		metrics.RecordCleanup(err)
		return sub, err
	}

	next := sub.Clone()
	next.CleanedState = model.CleanedStateCleaned
	next.UpdatedAt = time.Now().UTC()
	if err := w.subs.UpdateSubmission(ctx, next); err != nil {
		metrics.RecordCleanup(err)
		return sub, err
	}
	*sub = *next
	metrics.RecordCleanup(nil)

	logger.Info("remote resources cleaned", "deletes", attempted)
	w.observers.OnTransition(ctx, model.Transition{
		SubmissionID: sub.ID,
		Track:        model.TrackCleanup,
		From:         string(model.CleanedStateCleaning),
		To:           string(model.CleanedStateCleaned),
		At:           sub.UpdatedAt,
	})
	return sub, nil
}
