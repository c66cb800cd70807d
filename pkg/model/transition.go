package model

import (
	"context"
	"time"
)

// Transition tracks on which a submission moves.
const (
	TrackAnalysis = "analysis"
	TrackCleanup  = "cleanup"
)

// Transition reports one persisted lifecycle change of a submission.
type Transition struct {
	SubmissionID string    `json:"submission_id"`
	Track        string    `json:"track"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	At           time.Time `json:"at"`
	Reason       string    `json:"reason,omitempty"` // set when the move was caused by an error
}

// Observer is notified after every persisted transition. Implementations
// must not block.
type Observer interface {
	OnTransition(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

// OnTransition calls f.
func (f ObserverFunc) OnTransition(ctx context.Context, t Transition) { f(ctx, t) }

// Observers fans a transition out to several observers.
type Observers []Observer

// OnTransition notifies each observer in order.
func (os Observers) OnTransition(ctx context.Context, t Transition) {
	for _, o := range os {
		o.OnTransition(ctx, t)
	}
}
