package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	defs := s.workflows.List()
	respondOK(w, reqID, defs)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	def, err := s.workflows.GetDefinition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, def)
}
