package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/me/labexec/internal/metrics"
	"github.com/me/labexec/internal/pool"
	"github.com/me/labexec/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	PollInterval time.Duration

	// CleanupAfter marks finished submissions for cleanup once they have
	// been finished this long. Zero disables automatic cleanup.
	CleanupAfter time.Duration

	// MaxConcurrentPolls bounds the status polls run in parallel per tick.
	MaxConcurrentPolls int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second, MaxConcurrentPolls: 8}
}

// Store is the part of the submission store the scheduler reads and writes.
type Store interface {
	ListByState(ctx context.Context, states ...model.AnalysisState) ([]*model.AnalysisSubmission, error)
	ListByCleanedState(ctx context.Context, state model.CleanedState) ([]*model.AnalysisSubmission, error)
	UpdateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error
}

// Operations runs submission operations; execution.Service implements it.
type Operations interface {
	ExecuteAnalysisAsync(ctx context.Context, sub *model.AnalysisSubmission) (*pool.Future[*model.AnalysisSubmission], error)
	GetAnalysisResultsAsync(ctx context.Context, sub *model.AnalysisSubmission) (*pool.Future[*model.AnalysisResults], error)
	CleanupAsync(ctx context.Context, sub *model.AnalysisSubmission) (*pool.Future[*model.AnalysisSubmission], error)
	GetWorkflowStatus(ctx context.Context, sub *model.AnalysisSubmission) (*model.WorkflowStatus, error)
	AbandonPreparation(ctx context.Context, sub *model.AnalysisSubmission) (*model.AnalysisSubmission, error)
}

// Loop implements the Scheduler interface with a polling-based scheduling loop.
// Failed operations are logged and retried on a later tick. At most one
// operation runs per submission at a time.
type Loop struct {
	store  Store
	ops    Operations
	config Config
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}

	mu       sync.Mutex
	inFlight map[string]string // submission id -> operation
	pending  sync.WaitGroup
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a new scheduler loop.
func NewLoop(st Store, ops Operations, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxConcurrentPolls <= 0 {
		cfg.MaxConcurrentPolls = DefaultConfig().MaxConcurrentPolls
	}
	return &Loop{
		store:    st,
		ops:      ops,
		config:   cfg,
		logger:   logger.With("component", "scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		inFlight: make(map[string]string),
	}
}

// Start begins the scheduling loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("scheduler started", "poll_interval", l.config.PollInterval, "cleanup_after", l.config.CleanupAfter)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the scheduler and waits for the current tick to finish.
// Operations already handed to the pool keep running; the pool owner drains them.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Wait blocks until every dispatched asynchronous operation has finished.
func (l *Loop) Wait() {
	l.pending.Wait()
}

// Tick runs a single scheduling iteration. A submission gets at most one
// operation per tick, so a submission advanced by an early phase is picked up
// by later phases on the next tick.
func (l *Loop) Tick(ctx context.Context) error {
	touched := make(map[string]bool) // submissionIDs handled this tick

	// Phase 1: Fail PREPARING submissions left behind by an interrupted run.
	if err := l.recoverStale(ctx, touched); err != nil {
		return fmt.Errorf("phase 1 (recover): %w", err)
	}

	// Phase 2: Execute NEW submissions.
	if err := l.executeNew(ctx, touched); err != nil {
		return fmt.Errorf("phase 2 (execute): %w", err)
	}

	// Phase 3: Poll SUBMITTED/RUNNING submissions.
	if err := l.pollRunning(ctx, touched); err != nil {
		return fmt.Errorf("phase 3 (poll): %w", err)
	}

	// Phase 4: Collect results of COMPLETING submissions.
	if err := l.collectResults(ctx, touched); err != nil {
		return fmt.Errorf("phase 4 (results): %w", err)
	}

	// Phase 5: Mark finished submissions for cleanup once they are old enough.
	if err := l.markExpired(ctx); err != nil {
		return fmt.Errorf("phase 5 (expire): %w", err)
	}

	// Phase 6: Clean up CLEANING submissions.
	if err := l.cleanup(ctx, touched); err != nil {
		return fmt.Errorf("phase 6 (cleanup): %w", err)
	}

	return nil
}

// recoverStale moves PREPARING submissions with no operation in flight and
// no update for a full poll interval to ERROR. Preparation runs only inside
// an execute operation, so such a record was orphaned by a failed write or
// a restart.
func (l *Loop) recoverStale(ctx context.Context, touched map[string]bool) error {
	subs, err := l.store.ListByState(ctx, model.AnalysisStatePreparing)
	if err != nil {
		return err
	}
	cutoff := l.now().Add(-l.config.PollInterval)
	for _, sub := range subs {
		if sub.UpdatedAt.After(cutoff) || !l.claim(touched, sub.ID, "recover") {
			continue
		}
		_, err := l.ops.AbandonPreparation(ctx, sub)
		l.release(sub.ID)
		if err != nil {
			l.logger.Error("recover preparing submission", "submission_id", sub.ID, "error", err)
			continue
		}
		l.logger.Warn("stale preparing submission moved to error", "submission_id", sub.ID)
	}
	return nil
}

func (l *Loop) executeNew(ctx context.Context, touched map[string]bool) error {
	subs, err := l.store.ListByState(ctx, model.AnalysisStateNew)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		dispatch(l, touched, sub.ID, "execute", func() (*pool.Future[*model.AnalysisSubmission], error) {
			return l.ops.ExecuteAnalysisAsync(ctx, sub)
		})
	}
	return nil
}

// pollRunning polls every in-progress submission, in parallel, and waits for
// the polls to finish.
func (l *Loop) pollRunning(ctx context.Context, touched map[string]bool) error {
	subs, err := l.store.ListByState(ctx, model.AnalysisStateSubmitted, model.AnalysisStateRunning)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.MaxConcurrentPolls)
	for _, sub := range subs {
		if !l.claim(touched, sub.ID, "poll") {
			continue
		}
		sub := sub
		g.Go(func() error {
			defer l.release(sub.ID)
			st, err := l.ops.GetWorkflowStatus(gctx, sub)
			if err != nil {
				// One unreachable job must not stop the others.
				l.logger.Warn("status poll failed", "submission_id", sub.ID, "error", err)
				return nil
			}
			l.logger.Debug("status polled", "submission_id", sub.ID, "state", st.State, "proportion", st.Proportion)
			return nil
		})
	}
	return g.Wait()
}

func (l *Loop) collectResults(ctx context.Context, touched map[string]bool) error {
	subs, err := l.store.ListByState(ctx, model.AnalysisStateCompleting)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		dispatch(l, touched, sub.ID, "results", func() (*pool.Future[*model.AnalysisResults], error) {
			return l.ops.GetAnalysisResultsAsync(ctx, sub)
		})
	}
	return nil
}

func (l *Loop) markExpired(ctx context.Context) error {
	if l.config.CleanupAfter <= 0 {
		return nil
	}
	subs, err := l.store.ListByState(ctx, model.AnalysisStateCompleted, model.AnalysisStateError)
	if err != nil {
		return err
	}
	cutoff := l.now().Add(-l.config.CleanupAfter)
	for _, sub := range subs {
		if sub.CleanedState != model.CleanedStateNotCleaned || finishedAt(sub).After(cutoff) {
			continue
		}
		if !l.acquire(sub.ID, "mark cleaning") {
			continue
		}
		err := sub.MarkCleaning()
		if err == nil {
			err = l.store.UpdateSubmission(ctx, sub)
		}
		l.release(sub.ID)
		if err != nil {
			l.logger.Error("mark cleaning", "submission_id", sub.ID, "error", err)
			continue
		}
		l.logger.Info("submission marked for cleanup", "submission_id", sub.ID, "state", sub.State)
	}
	return nil
}

func (l *Loop) cleanup(ctx context.Context, touched map[string]bool) error {
	subs, err := l.store.ListByCleanedState(ctx, model.CleanedStateCleaning)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		dispatch(l, touched, sub.ID, "cleanup", func() (*pool.Future[*model.AnalysisSubmission], error) {
			return l.ops.CleanupAsync(ctx, sub)
		})
	}
	return nil
}

func finishedAt(sub *model.AnalysisSubmission) time.Time {
	if sub.CompletedAt != nil {
		return *sub.CompletedAt
	}
	return sub.UpdatedAt
}

// dispatch starts an asynchronous operation for a submission unless one is
// already in flight, and releases the submission when it finishes.
func dispatch[T any](l *Loop, touched map[string]bool, subID, op string, start func() (*pool.Future[T], error)) {
	if !l.claim(touched, subID, op) {
		return
	}
	fut, err := start()
	if err != nil {
		l.release(subID)
		l.logger.Error("dispatch failed", "submission_id", subID, "op", op, "error", err)
		return
	}
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		defer l.release(subID)
		<-fut.Done()
		if _, err := fut.Wait(context.Background()); err != nil {
			l.logger.Warn("operation failed", "submission_id", subID, "op", op, "error", err)
			return
		}
		l.logger.Debug("operation finished", "submission_id", subID, "op", op)
	}()
}

// claim acquires subID for op unless it was already handled this tick.
func (l *Loop) claim(touched map[string]bool, subID, op string) bool {
	if touched[subID] || !l.acquire(subID, op) {
		return false
	}
	touched[subID] = true
	return true
}

// acquire claims subID for op. It returns false when another operation on
// the submission is still in flight.
func (l *Loop) acquire(subID, op string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, busy := l.inFlight[subID]; busy {
		l.logger.Debug("submission busy", "submission_id", subID, "op", op, "in_flight", cur)
		return false
	}
	l.inFlight[subID] = op
	metrics.SetInFlight(len(l.inFlight))
	return true
}

func (l *Loop) release(subID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, subID)
	metrics.SetInFlight(len(l.inFlight))
}

// InFlight returns the number of submissions with an operation in flight.
func (l *Loop) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inFlight)
}
