package execution

import (
	"context"

	"github.com/me/labexec/internal/pool"
	"github.com/me/labexec/pkg/model"
)

// Cleaner tears down the remote resources of a CLEANING submission.
type Cleaner interface {
	Cleanup(ctx context.Context, sub *model.AnalysisSubmission) (*model.AnalysisSubmission, error)
}

// Service runs the long coordinator operations and cleanup on a worker pool.
// Status polls are cheap and stay synchronous.
type Service struct {
	coord   *Coordinator
	cleaner Cleaner
	pool    *pool.Pool
}

// NewService creates a Service. The pool is owned by the caller.
func NewService(coord *Coordinator, cleaner Cleaner, p *pool.Pool) *Service {
	return &Service{coord: coord, cleaner: cleaner, pool: p}
}

// ExecuteAnalysisAsync schedules Coordinator.ExecuteAnalysis. The returned
// error only reports that the work could not be admitted.
func (s *Service) ExecuteAnalysisAsync(ctx context.Context, sub *model.AnalysisSubmission) (*pool.Future[*model.AnalysisSubmission], error) {
	return pool.Submit(ctx, s.pool, "execute "+sub.ID, func(ctx context.Context) (*model.AnalysisSubmission, error) {
		return s.coord.ExecuteAnalysis(ctx, sub)
	})
}

// GetAnalysisResultsAsync schedules Coordinator.GetAnalysisResults.
func (s *Service) GetAnalysisResultsAsync(ctx context.Context, sub *model.AnalysisSubmission) (*pool.Future[*model.AnalysisResults], error) {
	return pool.Submit(ctx, s.pool, "results "+sub.ID, func(ctx context.Context) (*model.AnalysisResults, error) {
		return s.coord.GetAnalysisResults(ctx, sub)
	})
}

// CleanupAsync schedules cleanup of a CLEANING submission.
func (s *Service) CleanupAsync(ctx context.Context, sub *model.AnalysisSubmission) (*pool.Future[*model.AnalysisSubmission], error) {
	return pool.Submit(ctx, s.pool, "cleanup "+sub.ID, func(ctx context.Context) (*model.AnalysisSubmission, error) {
		return s.cleaner.Cleanup(ctx, sub)
	})
}

// AbandonPreparation fails a PREPARING submission synchronously.
func (s *Service) AbandonPreparation(ctx context.Context, sub *model.AnalysisSubmission) (*model.AnalysisSubmission, error) {
	return s.coord.AbandonPreparation(ctx, sub)
}

// GetWorkflowStatus polls the remote job synchronously.
func (s *Service) GetWorkflowStatus(ctx context.Context, sub *model.AnalysisSubmission) (*model.WorkflowStatus, error) {
	return s.coord.GetWorkflowStatus(ctx, sub)
}

// QueryWorkflowStatus reports the remote status without changing sub.
func (s *Service) QueryWorkflowStatus(ctx context.Context, sub *model.AnalysisSubmission) (*model.WorkflowStatus, error) {
	return s.coord.QueryWorkflowStatus(ctx, sub)
}
