// Package status maps the raw state strings reported by the remote execution
// manager onto the closed set of canonical workflow states.
package status

import (
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/me/labexec/pkg/model"
)

// Class is the category a raw remote state belongs to.
type Class int

const (
	ClassUnknown Class = iota
	ClassOK
	ClassInProgress
	ClassError
)

// String returns the name of the class.
func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassInProgress:
		return "in-progress"
	case ClassError:
		return "error"
	default:
		return "unknown"
	}
}

// stateClasses is the raw-state to class table. Keys are normalized with
// normalize. Anything absent is ClassUnknown.
var stateClasses = map[string]Class{
	"ok": ClassOK,

	"new":              ClassInProgress,
	"upload":           ClassInProgress,
	"queued":           ClassInProgress,
	"running":          ClassInProgress,
	"paused":           ClassInProgress,
	"setting_metadata": ClassInProgress,
	"resubmitted":      ClassInProgress,

	"error":           ClassError,
	"failed_metadata": ClassError,
	"empty":           ClassError,
	"discarded":       ClassError,
}

func normalize(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
}

// Classify returns the class of a raw remote state.
func Classify(raw string) Class {
	return stateClasses[normalize(raw)]
}

// Resolver turns raw remote status reports into canonical workflow status.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{logger: logger.With("component", "status-resolver")}
}

// Resolve computes the canonical status from the overall remote state and the
// remote item ids grouped by their raw state.
//
// Any item in an error-class state, or an error-class overall state, yields
// ERROR. An OK overall state with every item OK yields COMPLETED. Everything
// else, including unknown overall states, yields RUNNING.
func (r *Resolver) Resolve(overall string, items map[string][]string) *model.WorkflowStatus {
	var total, ok int
	anyError := false
	allOK := true

	// Deterministic iteration keeps the unknown-state log stable.
	raws := make([]string, 0, len(items))
	for raw := range items {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	for _, raw := range raws {
		n := len(items[raw])
		total += n
		if n == 0 {
			continue
		}
		switch Classify(raw) {
		case ClassOK:
			ok += n
		case ClassError:
			anyError = true
			allOK = false
		case ClassUnknown:
			r.logger.Warn("unknown remote item state", "state", raw, "count", n)
			allOK = false
		default:
			allOK = false
		}
	}

	overallClass := Classify(overall)
	if overallClass == ClassUnknown {
		r.logger.Warn("unknown remote overall state", "state", overall)
	}

	st := &model.WorkflowStatus{
		RemoteState:  overall,
		ItemsByState: items,
		Proportion:   proportion(ok, total),
	}
	switch {
	case anyError || overallClass == ClassError:
		st.State = model.CanonicalError
	case overallClass == ClassOK && allOK:
		st.State = model.CanonicalCompleted
	default:
		st.State = model.CanonicalRunning
	}
	return st
}

func proportion(ok, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}
