// Package scheduler polls the submission store and drives every stored
// submission through execution, status polling, result collection and
// cleanup.
package scheduler

import "context"

// Scheduler drives stored submissions through their lifecycle and cleanup.
type Scheduler interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single scheduling iteration. Used for testing.
	Tick(ctx context.Context) error

	// InFlight returns the number of submissions with an operation running.
	InFlight() int
}
