package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/labexec/pkg/model"
)

// Version is the labexec API version reported by /health.
const Version = "0.1.0"

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
	InFlight  int    `json:"in_flight"` // submissions with a scheduler operation running
	Store     string `json:"store"`
	Workflows int    `json:"workflows"`
	Galaxy    string `json:"galaxy"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: "disabled",
		Store:     "ok",
		Workflows: len(s.workflows.List()),
		Galaxy:    s.config.Galaxy.URL,
	}
	if s.scheduler != nil {
		resp.Scheduler = "running"
		resp.InFlight = s.scheduler.InFlight()
	}
	if _, _, err := s.store.ListSubmissions(r.Context(), model.ListOptions{Limit: 1}); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
	}
	respondOK(w, reqID, resp)
}
