package model

import "testing"

func TestAnalysisState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    AnalysisState
		terminal bool
	}{
		{AnalysisStateNew, false},
		{AnalysisStatePreparing, false},
		{AnalysisStateSubmitted, false},
		{AnalysisStateRunning, false},
		{AnalysisStateCompleting, false},
		{AnalysisStateCompleted, true},
		{AnalysisStateError, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("AnalysisState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestAnalysisState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  AnalysisState
		to    AnalysisState
		valid bool
	}{
		// Valid transitions
		{AnalysisStateNew, AnalysisStatePreparing, true},
		{AnalysisStatePreparing, AnalysisStateSubmitted, true},
		{AnalysisStatePreparing, AnalysisStateError, true},
		{AnalysisStateSubmitted, AnalysisStateRunning, true},
		{AnalysisStateSubmitted, AnalysisStateCompleting, true},
		{AnalysisStateSubmitted, AnalysisStateError, true},
		{AnalysisStateRunning, AnalysisStateCompleting, true},
		{AnalysisStateRunning, AnalysisStateError, true},
		{AnalysisStateCompleting, AnalysisStateCompleted, true},
		{AnalysisStateCompleting, AnalysisStateError, true},

		// Invalid transitions
		{AnalysisStateNew, AnalysisStateError, false},
		{AnalysisStateNew, AnalysisStateSubmitted, false},
		{AnalysisStateRunning, AnalysisStateRunning, false},
		{AnalysisStateRunning, AnalysisStateSubmitted, false},
		{AnalysisStateCompleting, AnalysisStateRunning, false},
		{AnalysisStateCompleted, AnalysisStateError, false},
		{AnalysisStateError, AnalysisStateNew, false},
		{AnalysisStateError, AnalysisStateRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("AnalysisState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestAnalysisState_IsKnown(t *testing.T) {
	for _, s := range []AnalysisState{
		AnalysisStateNew, AnalysisStatePreparing, AnalysisStateSubmitted, AnalysisStateRunning,
		AnalysisStateCompleting, AnalysisStateCompleted, AnalysisStateError,
	} {
		if !s.IsKnown() {
			t.Errorf("AnalysisState(%q).IsKnown() = false", s)
		}
	}
	if AnalysisState("PAUSED").IsKnown() {
		t.Error("unexpected known state PAUSED")
	}
}

func TestCleanedState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  CleanedState
		to    CleanedState
		valid bool
	}{
		{CleanedStateNotCleaned, CleanedStateCleaning, true},
		{CleanedStateCleaning, CleanedStateCleaned, true},
		{CleanedStateCleaning, CleanedStateCleanFailed, true},
		{CleanedStateCleanFailed, CleanedStateCleaning, true},
		{CleanedStateCleaned, CleanedStateCleaning, true},

		{CleanedStateNotCleaned, CleanedStateCleaned, false},
		{CleanedStateCleaned, CleanedStateNotCleaned, false},
		{CleanedStateCleanFailed, CleanedStateCleaned, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("CleanedState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestInputKind_IsUploaded(t *testing.T) {
	tests := []struct {
		kind InputKind
		want bool
	}{
		{InputKindFile, true},
		{InputKindReference, true},
		{"", true},
		{InputKindParameter, false},
	}
	for _, tt := range tests {
		if got := tt.kind.IsUploaded(); got != tt.want {
			t.Errorf("InputKind(%q).IsUploaded() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
