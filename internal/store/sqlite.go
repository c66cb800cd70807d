package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/me/labexec/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Submission CRUD ---

const submissionColumns = `id, name, workflow_id, inputs, state, cleaned_state,
	remote_analysis_id, remote_input_data_id, remote_workflow_id, remote_invocation_id,
	progress, error_message, submitted_by, version, created_at, updated_at, completed_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.AnalysisSubmission, error) {
	var sub model.AnalysisSubmission
	var inputsJSON, state, cleanedState, createdAt, updatedAt string
	var completedAt *string

	if err := row.Scan(&sub.ID, &sub.Name, &sub.WorkflowID, &inputsJSON, &state, &cleanedState,
		&sub.RemoteAnalysisID, &sub.RemoteInputDataID, &sub.RemoteWorkflowID, &sub.RemoteInvocationID,
		&sub.Progress, &sub.ErrorMessage, &sub.SubmittedBy, &sub.Version,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}

	sub.State = model.AnalysisState(state)
	sub.CleanedState = model.CleanedState(cleanedState)
	if err := json.Unmarshal([]byte(inputsJSON), &sub.Inputs); err != nil {
		return nil, fmt.Errorf("unmarshal inputs: %w", err)
	}
	sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if completedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *completedAt)
		sub.CompletedAt = &t
	}
	return &sub, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error {
	s.logger.Debug("sql", "op", "insert", "table", "submissions", "id", sub.ID)

	inputsJSON, err := json.Marshal(sub.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	if sub.State == "" {
		sub.State = model.AnalysisStateNew
	}
	if sub.CleanedState == "" {
		sub.CleanedState = model.CleanedStateNotCleaned
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.WorkflowID, string(inputsJSON), string(sub.State), string(sub.CleanedState),
		sub.RemoteAnalysisID, sub.RemoteInputDataID, sub.RemoteWorkflowID, sub.RemoteInvocationID,
		sub.Progress, sub.ErrorMessage, sub.SubmittedBy, sub.Version,
		sub.CreatedAt.Format(time.RFC3339Nano), sub.UpdatedAt.Format(time.RFC3339Nano),
		formatTimePtr(sub.CompletedAt),
	)
	return err
}

// GetSubmission returns the submission with id, or nil when there is none.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.AnalysisSubmission, error) {
	s.logger.Debug("sql", "op", "select", "table", "submissions", "id", id)

	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, opts model.ListOptions) ([]*model.AnalysisSubmission, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "submissions", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	// Build WHERE clause dynamically based on filters.
	var whereClauses []string
	var countArgs []any

	if opts.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		countArgs = append(countArgs, string(opts.State))
	}
	if opts.CleanedState != "" {
		whereClauses = append(whereClauses, "cleaned_state = ?")
		countArgs = append(countArgs, string(opts.CleanedState))
	}
	if opts.WorkflowID != "" {
		whereClauses = append(whereClauses, "workflow_id = ?")
		countArgs = append(countArgs, opts.WorkflowID)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM submissions` + whereSQL
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + submissionColumns + ` FROM submissions` + whereSQL +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	subs, err := s.querySubmissions(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// ListByState returns every submission in one of states, oldest first.
func (s *SQLiteStore) ListByState(ctx context.Context, states ...model.AnalysisState) ([]*model.AnalysisSubmission, error) {
	s.logger.Debug("sql", "op", "list_by_state", "table", "submissions", "states", states)
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	return s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE state IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY created_at ASC`, args...)
}

// ListByCleanedState returns every submission whose cleanup is in state,
// oldest first.
func (s *SQLiteStore) ListByCleanedState(ctx context.Context, state model.CleanedState) ([]*model.AnalysisSubmission, error) {
	s.logger.Debug("sql", "op", "list_by_cleaned_state", "table", "submissions", "cleaned_state", state)
	return s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE cleaned_state = ? ORDER BY created_at ASC`,
		string(state))
}

func (s *SQLiteStore) querySubmissions(ctx context.Context, query string, args ...any) ([]*model.AnalysisSubmission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*model.AnalysisSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateSubmission saves sub if its Version matches the stored one and
// increments sub.Version. A stale version is a model.ConflictError; changing
// a remote id that is already set is a model.WriteOnceError.
func (s *SQLiteStore) UpdateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error {
	s.logger.Debug("sql", "op", "update", "table", "submissions", "id", sub.ID, "version", sub.Version)

	inputsJSON, err := json.Marshal(sub.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int64
	var cur model.AnalysisSubmission
	err = tx.QueryRowContext(ctx,
		`SELECT version, remote_analysis_id, remote_input_data_id, remote_workflow_id, remote_invocation_id
		 FROM submissions WHERE id = ?`, sub.ID,
	).Scan(&version, &cur.RemoteAnalysisID, &cur.RemoteInputDataID, &cur.RemoteWorkflowID, &cur.RemoteInvocationID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewNotFoundError("submission", sub.ID)
	}
	if err != nil {
		return err
	}
	if version != sub.Version {
		return &model.ConflictError{SubmissionID: sub.ID, Version: sub.Version}
	}

	// Replaying the new ids through the write-once setters rejects overwrites
	// and clears.
	cur.ID = sub.ID
	if err := errors.Join(
		checkCleared(sub.ID, "remote_analysis_id", cur.RemoteAnalysisID, sub.RemoteAnalysisID),
		checkCleared(sub.ID, "remote_input_data_id", cur.RemoteInputDataID, sub.RemoteInputDataID),
		checkCleared(sub.ID, "remote_workflow_id", cur.RemoteWorkflowID, sub.RemoteWorkflowID),
		checkCleared(sub.ID, "remote_invocation_id", cur.RemoteInvocationID, sub.RemoteInvocationID),
		cur.SetRemoteAnalysisID(sub.RemoteAnalysisID),
		cur.SetRemoteInputDataID(sub.RemoteInputDataID),
		cur.SetRemoteWorkflowID(sub.RemoteWorkflowID),
		cur.SetRemoteInvocationID(sub.RemoteInvocationID),
	); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE submissions SET name=?, inputs=?, state=?, cleaned_state=?,
		 remote_analysis_id=?, remote_input_data_id=?, remote_workflow_id=?, remote_invocation_id=?,
		 progress=?, error_message=?, version=?, updated_at=?, completed_at=?
		 WHERE id=? AND version=?`,
		sub.Name, string(inputsJSON), string(sub.State), string(sub.CleanedState),
		sub.RemoteAnalysisID, sub.RemoteInputDataID, sub.RemoteWorkflowID, sub.RemoteInvocationID,
		sub.Progress, sub.ErrorMessage, sub.Version+1, sub.UpdatedAt.Format(time.RFC3339Nano),
		formatTimePtr(sub.CompletedAt), sub.ID, sub.Version,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return &model.ConflictError{SubmissionID: sub.ID, Version: sub.Version}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	sub.Version++
	return nil
}

// checkCleared rejects removing a remote id that is already stored.
func checkCleared(subID, field, stored, next string) error {
	if stored != "" && next == "" {
		return &model.WriteOnceError{SubmissionID: subID, Field: field, Current: stored, Attempted: next}
	}
	return nil
}

// --- Results ---

func (s *SQLiteStore) SaveResults(ctx context.Context, res *model.AnalysisResults) error {
	s.logger.Debug("sql", "op", "insert", "table", "results", "id", res.ID, "submission_id", res.SubmissionID)

	outputsJSON, err := json.Marshal(res.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	// A retried collection replaces the earlier, possibly partial, results.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, submission_id, workflow_type, outputs, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(submission_id) DO UPDATE SET
		   id=excluded.id, workflow_type=excluded.workflow_type,
		   outputs=excluded.outputs, created_at=excluded.created_at`,
		res.ID, res.SubmissionID, res.WorkflowType, string(outputsJSON),
		res.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// GetResults returns the results of a submission, or nil when none were saved.
func (s *SQLiteStore) GetResults(ctx context.Context, submissionID string) (*model.AnalysisResults, error) {
	s.logger.Debug("sql", "op", "select", "table", "results", "submission_id", submissionID)

	var res model.AnalysisResults
	var outputsJSON, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, submission_id, workflow_type, outputs, created_at FROM results WHERE submission_id = ?`,
		submissionID,
	).Scan(&res.ID, &res.SubmissionID, &res.WorkflowType, &outputsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outputsJSON), &res.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal outputs: %w", err)
	}
	res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &res, nil
}
