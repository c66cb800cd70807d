package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/me/labexec/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleSubmission(id string) *model.AnalysisSubmission {
	sub := model.NewSubmission(id, "assembly of S1", "wf_assembly", []model.InputReference{
		{Role: "forward_reads", Location: "/data/s1_R1.fastq"},
		{Role: "min_contig_length", Kind: model.InputKindParameter, Value: float64(500)},
	})
	sub.SubmittedBy = "user@test"
	sub.CreatedAt = sub.CreatedAt.Truncate(time.Millisecond)
	sub.UpdatedAt = sub.CreatedAt
	return sub
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCreateAndGetSubmission(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	sub := sampleSubmission("sub_test-1")

	if err := st.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected submission, got nil")
	}
	if got.WorkflowID != "wf_assembly" || got.Name != "assembly of S1" {
		t.Errorf("got %+v", got)
	}
	if got.State != model.AnalysisStateNew || got.CleanedState != model.CleanedStateNotCleaned {
		t.Errorf("state = %s/%s", got.State, got.CleanedState)
	}
	if len(got.Inputs) != 2 || got.Inputs[1].Value != float64(500) {
		t.Errorf("inputs = %+v", got.Inputs)
	}
	if !got.CreatedAt.Equal(sub.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, sub.CreatedAt)
	}
	if got.CompletedAt != nil {
		t.Errorf("completed_at = %v, want nil", got.CompletedAt)
	}
}

func TestGetSubmission_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetSubmission(context.Background(), "sub_nonexistent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpdateSubmission(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	sub := sampleSubmission("sub_test-1")
	st.CreateSubmission(ctx, sub)

	for _, next := range []model.AnalysisState{model.AnalysisStatePreparing, model.AnalysisStateSubmitted} {
		if err := sub.TransitionTo(next); err != nil {
			t.Fatal(err)
		}
		if next == model.AnalysisStateSubmitted {
			sub.SetRemoteAnalysisID("h1")
			sub.SetRemoteInvocationID("inv1")
		}
		if err := st.UpdateSubmission(ctx, sub); err != nil {
			t.Fatalf("update to %s: %v", next, err)
		}
	}
	if sub.Version != 2 {
		t.Errorf("Version = %d, want 2", sub.Version)
	}

	got, _ := st.GetSubmission(ctx, sub.ID)
	if got.State != model.AnalysisStateSubmitted || got.RemoteAnalysisID != "h1" || got.RemoteInvocationID != "inv1" {
		t.Errorf("got %+v", got)
	}
	if got.Version != 2 {
		t.Errorf("stored Version = %d, want 2", got.Version)
	}
}

func TestUpdateSubmission_CompletedAt(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	sub := sampleSubmission("sub_test-1")
	sub.State = model.AnalysisStateCompleting
	st.CreateSubmission(ctx, sub)

	sub.TransitionTo(model.AnalysisStateCompleted)
	if err := st.UpdateSubmission(ctx, sub); err != nil {
		t.Fatal(err)
	}
	got, _ := st.GetSubmission(ctx, sub.ID)
	if got.CompletedAt == nil || !got.CompletedAt.Equal(*sub.CompletedAt) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, sub.CompletedAt)
	}
}

func TestUpdateSubmission_NotFound(t *testing.T) {
	st := testStore(t)
	err := st.UpdateSubmission(context.Background(), sampleSubmission("sub_nonexistent"))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestUpdateSubmission_StaleVersion(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	sub := sampleSubmission("sub_test-1")
	st.CreateSubmission(ctx, sub)

	a, _ := st.GetSubmission(ctx, sub.ID)
	b, _ := st.GetSubmission(ctx, sub.ID)

	a.TransitionTo(model.AnalysisStatePreparing)
	if err := st.UpdateSubmission(ctx, a); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	b.Progress = 0.5
	err := st.UpdateSubmission(ctx, b)
	var ce *model.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if b.Version != 0 {
		t.Errorf("stale Version bumped to %d", b.Version)
	}

	got, _ := st.GetSubmission(ctx, sub.ID)
	if got.Progress != 0 || got.State != model.AnalysisStatePreparing {
		t.Errorf("stale write applied: %+v", got)
	}
}

func TestUpdateSubmission_WriteOnce(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(sub *model.AnalysisSubmission)
	}{
		{"overwrite", func(sub *model.AnalysisSubmission) { sub.RemoteAnalysisID = "h2" }},
		{"clear", func(sub *model.AnalysisSubmission) { sub.RemoteAnalysisID = "" }},
		{"overwrite library", func(sub *model.AnalysisSubmission) { sub.RemoteInputDataID = "lib2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testStore(t)
			ctx := context.Background()
			sub := sampleSubmission("sub_test-1")
			sub.RemoteAnalysisID = "h1"
			sub.RemoteInputDataID = "lib1"
			st.CreateSubmission(ctx, sub)

			tt.mutate(sub)
			err := st.UpdateSubmission(ctx, sub)
			var woe *model.WriteOnceError
			if !errors.As(err, &woe) {
				t.Fatalf("expected WriteOnceError, got %v", err)
			}
			got, _ := st.GetSubmission(ctx, sub.ID)
			if got.RemoteAnalysisID != "h1" || got.RemoteInputDataID != "lib1" || got.Version != 0 {
				t.Errorf("write applied: %+v", got)
			}
		})
	}
}

func TestListSubmissions(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		sub := sampleSubmission(fmt.Sprintf("sub_%d", i))
		sub.CreatedAt = sub.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := st.CreateSubmission(ctx, sub); err != nil {
			t.Fatal(err)
		}
	}

	subs, total, err := st.ListSubmissions(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2", len(subs))
	}
	// Newest first.
	if subs[0].ID != "sub_4" {
		t.Errorf("first = %s, want sub_4", subs[0].ID)
	}
}

func TestListSubmissions_Filters(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	a := sampleSubmission("sub_a")
	b := sampleSubmission("sub_b")
	b.State = model.AnalysisStateError
	b.CleanedState = model.CleanedStateCleaning
	c := sampleSubmission("sub_c")
	c.WorkflowID = "wf_other"
	for _, sub := range []*model.AnalysisSubmission{a, b, c} {
		st.CreateSubmission(ctx, sub)
	}

	tests := []struct {
		name string
		opts model.ListOptions
		want int
	}{
		{"state", model.ListOptions{State: "NEW"}, 2},
		{"cleaned state", model.ListOptions{CleanedState: "CLEANING"}, 1},
		{"workflow", model.ListOptions{WorkflowID: "wf_other"}, 1},
		{"combined", model.ListOptions{State: "NEW", WorkflowID: "wf_assembly"}, 1},
		{"none", model.ListOptions{State: "RUNNING"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, total, err := st.ListSubmissions(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.want || len(subs) != tt.want {
				t.Errorf("total=%d len=%d, want %d", total, len(subs), tt.want)
			}
		})
	}
}

func TestListByState(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	states := []model.AnalysisState{
		model.AnalysisStateNew, model.AnalysisStateSubmitted, model.AnalysisStateRunning, model.AnalysisStateCompleted,
	}
	for i, state := range states {
		sub := sampleSubmission(fmt.Sprintf("sub_%d", i))
		sub.State = state
		st.CreateSubmission(ctx, sub)
	}

	got, err := st.ListByState(ctx, model.AnalysisStateSubmitted, model.AnalysisStateRunning)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if none, _ := st.ListByState(ctx); none != nil {
		t.Errorf("no states should list nothing, got %d", len(none))
	}
}

func TestListByCleanedState(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	a := sampleSubmission("sub_a")
	a.State = model.AnalysisStateCompleted
	a.CleanedState = model.CleanedStateCleaning
	st.CreateSubmission(ctx, a)
	st.CreateSubmission(ctx, sampleSubmission("sub_b"))

	got, err := st.ListByCleanedState(ctx, model.CleanedStateCleaning)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "sub_a" {
		t.Errorf("got %v", got)
	}
}

func TestSaveAndGetResults(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	sub := sampleSubmission("sub_test-1")
	st.CreateSubmission(ctx, sub)

	res := &model.AnalysisResults{
		ID:           "res_1",
		SubmissionID: sub.ID,
		WorkflowType: "assembly",
		Outputs: []model.WorkflowOutputReference{
			{JobID: "j1", OutputID: "d1", Label: "contigs", DownloadURL: "http://galaxy/api/datasets/d1/display?to_ext=data"},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := st.SaveResults(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.GetResults(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != "res_1" || got.WorkflowType != "assembly" {
		t.Fatalf("got %+v", got)
	}
	if len(got.Outputs) != 1 || got.Outputs[0].Label != "contigs" {
		t.Errorf("outputs = %+v", got.Outputs)
	}

	// Saving again for the same submission replaces the row.
	res2 := *res
	res2.ID = "res_2"
	res2.Outputs = nil
	if err := st.SaveResults(ctx, &res2); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, _ = st.GetResults(ctx, sub.ID)
	if got.ID != "res_2" {
		t.Errorf("ID = %s, want res_2", got.ID)
	}
}

func TestGetResults_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetResults(context.Background(), "sub_none")
	if err != nil || got != nil {
		t.Errorf("got %+v, %v; want nil, nil", got, err)
	}
}

func TestSaveResults_UnknownSubmission(t *testing.T) {
	st := testStore(t)
	res := &model.AnalysisResults{ID: "res_1", SubmissionID: "sub_none", CreatedAt: time.Now()}
	if err := st.SaveResults(context.Background(), res); err == nil {
		t.Error("expected foreign key error")
	}
}
