package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "labexec API",
		Version:     "v1",
		Description: "Remote analysis execution on a Galaxy workflow manager",
		Endpoints: []endpointInfo{
			{"/api/v1/workflows", []string{"GET"}, "Registered workflow definitions"},
			{"/api/v1/workflows/{id}", []string{"GET"}, "Single workflow definition"},
			{"/api/v1/submissions", []string{"GET", "POST"}, "Analysis submissions. GET filters: state, cleaned_state, workflow_id, limit, offset"},
			{"/api/v1/submissions/{id}", []string{"GET"}, "Single submission"},
			{"/api/v1/submissions/{id}/status", []string{"GET"}, "Live remote workflow status"},
			{"/api/v1/submissions/{id}/results", []string{"GET"}, "Outputs of a completed analysis"},
			{"/api/v1/submissions/{id}/cleanup", []string{"PUT"}, "Mark a finished submission for remote cleanup"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
