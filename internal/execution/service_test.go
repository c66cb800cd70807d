package execution

import (
	"context"
	"testing"
	"time"

	"github.com/me/labexec/internal/pool"
	"github.com/me/labexec/pkg/model"
)

type stubCleaner struct{ calls int }

func (c *stubCleaner) Cleanup(_ context.Context, sub *model.AnalysisSubmission) (*model.AnalysisSubmission, error) {
	c.calls++
	sub.CleanedState = model.CleanedStateCleaned
	return sub, nil
}

func TestService_Async(t *testing.T) {
	sub := newSub()
	f := newFixture(t, sub)
	f.client.status = &model.WorkflowStatus{State: model.CanonicalCompleted, Proportion: 1}
	f.client.outputs = []model.WorkflowOutputReference{{Label: "contigs"}}

	p := pool.New(2, 2, nil)
	defer p.Close(context.Background())
	cleaner := &stubCleaner{}
	svc := NewService(f.coord, cleaner, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fut, err := svc.ExecuteAnalysisAsync(ctx, sub)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("ExecuteAnalysisAsync: %v", err)
	}
	if got.State != model.AnalysisStateSubmitted {
		t.Fatalf("State = %s, want SUBMITTED", got.State)
	}

	if _, err := svc.GetWorkflowStatus(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if sub.State != model.AnalysisStateCompleting {
		t.Fatalf("State = %s, want COMPLETING", sub.State)
	}

	rf, err := svc.GetAnalysisResultsAsync(ctx, sub)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rf.Wait(ctx); err != nil {
		t.Fatalf("GetAnalysisResultsAsync: %v", err)
	}
	if sub.State != model.AnalysisStateCompleted {
		t.Fatalf("State = %s, want COMPLETED", sub.State)
	}

	if err := sub.MarkCleaning(); err != nil {
		t.Fatal(err)
	}
	cf, err := svc.CleanupAsync(ctx, sub)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cf.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if cleaner.calls != 1 {
		t.Errorf("cleanup calls = %d, want 1", cleaner.calls)
	}
}

func TestService_ClosedPool(t *testing.T) {
	sub := newSub()
	f := newFixture(t, sub)
	p := pool.New(1, 0, nil)
	if err := p.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(f.coord, &stubCleaner{}, p)
	if _, err := svc.ExecuteAnalysisAsync(context.Background(), sub); err != pool.ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if sub.State != model.AnalysisStateNew {
		t.Errorf("State = %s, want NEW", sub.State)
	}
}
