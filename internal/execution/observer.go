package execution

import (
	"context"
	"log/slog"

	"github.com/me/labexec/internal/metrics"
	"github.com/me/labexec/pkg/model"
)

// MetricsObserver counts analysis transitions in Prometheus.
type MetricsObserver struct{}

// OnTransition implements model.Observer.
func (MetricsObserver) OnTransition(_ context.Context, t model.Transition) {
	if t.Track != model.TrackAnalysis {
		return
	}
	metrics.RecordTransition(t.From, t.To)
}

// LogObserver writes every transition to a logger at INFO, or WARN when the
// transition was caused by an error.
type LogObserver struct {
	Logger *slog.Logger
}

// OnTransition implements model.Observer.
func (o LogObserver) OnTransition(ctx context.Context, t model.Transition) {
	level := slog.LevelInfo
	if t.Reason != "" {
		level = slog.LevelWarn
	}
	attrs := []any{"submission_id", t.SubmissionID, "track", t.Track, "from", t.From, "to", t.To}
	if t.Reason != "" {
		attrs = append(attrs, "reason", t.Reason)
	}
	o.Logger.Log(ctx, level, "submission transition", attrs...)
}
