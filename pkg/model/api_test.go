package model

import (
	"errors"
	"testing"
)

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"defaults", ListOptions{}, DefaultListLimit, 0},
		{"negative limit", ListOptions{Limit: -5}, DefaultListLimit, 0},
		{"over max", ListOptions{Limit: 200}, MaxListLimit, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"valid", ListOptions{Limit: 50, Offset: 10}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Clamp()
			if tt.input.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.input.Limit, tt.wantLimit)
			}
			if tt.input.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", tt.input.Offset, tt.wantOffset)
			}
		})
	}
}

func TestListOptions_Validate(t *testing.T) {
	tests := []struct {
		name        string
		opts        ListOptions
		wantDetails int
	}{
		{"no filters", DefaultListOptions(), 0},
		{"known states", ListOptions{State: AnalysisStateCompleting, CleanedState: CleanedStateCleanFailed}, 0},
		{"terminal state", ListOptions{State: AnalysisStateError}, 0},
		{"unknown state", ListOptions{State: "DONE"}, 1},
		{"lowercase state", ListOptions{State: "running"}, 1},
		{"both unknown", ListOptions{State: "DONE", CleanedState: "GONE"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantDetails == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Code != ErrValidation {
				t.Fatalf("Validate() error = %v, want validation APIError", err)
			}
			if len(apiErr.Details) != tt.wantDetails {
				t.Errorf("details = %+v, want %d", apiErr.Details, tt.wantDetails)
			}
		})
	}
}
