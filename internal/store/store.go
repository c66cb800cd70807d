package store

import (
	"context"

	"github.com/me/labexec/pkg/model"
)

// Store defines the persistence layer for labexec entities.
type Store interface {
	// Submission CRUD
	CreateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error
	GetSubmission(ctx context.Context, id string) (*model.AnalysisSubmission, error)
	ListSubmissions(ctx context.Context, opts model.ListOptions) ([]*model.AnalysisSubmission, int, error)
	UpdateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error

	// Scheduler queries
	ListByState(ctx context.Context, states ...model.AnalysisState) ([]*model.AnalysisSubmission, error)
	ListByCleanedState(ctx context.Context, state model.CleanedState) ([]*model.AnalysisSubmission, error)

	// Results
	SaveResults(ctx context.Context, res *model.AnalysisResults) error
	GetResults(ctx context.Context, submissionID string) (*model.AnalysisResults, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
