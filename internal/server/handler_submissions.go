package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/me/labexec/pkg/model"
)

type createSubmissionRequest struct {
	Name        string                 `json:"name"`
	WorkflowID  string                 `json:"workflow_id"`
	Inputs      []model.InputReference `json:"inputs"`
	SubmittedBy string                 `json:"submitted_by"`
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	if req.WorkflowID == "" {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "missing required field",
			Details: []model.FieldError{{Field: "workflow_id", Message: "workflow_id is required"}},
		})
		return
	}

	def, err := s.workflows.GetDefinition(r.Context(), req.WorkflowID)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if details := checkInputs(def, req.Inputs); len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "inputs do not match workflow " + def.ID,
			Details: details,
		})
		return
	}

	sub := model.NewSubmission("sub_"+uuid.New().String(), req.Name, def.ID, req.Inputs)
	sub.SubmittedBy = req.SubmittedBy
	if err := s.store.CreateSubmission(r.Context(), sub); err != nil {
		respondErr(w, reqID, err)
		return
	}

	s.logger.Info("submission created", "id", sub.ID, "workflow_id", def.ID, "inputs", len(sub.Inputs))
	respondCreated(w, reqID, sub)
}

// checkInputs reports inputs that could never be prepared: undeclared or
// duplicate roles and missing required roles.
func checkInputs(def *model.WorkflowDefinition, inputs []model.InputReference) []model.FieldError {
	var details []model.FieldError
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		field := "inputs." + in.Role
		if _, ok := def.Input(in.Role); !ok {
			details = append(details, model.FieldError{Field: field, Message: "not an input of the workflow"})
		}
		if seen[in.Role] {
			details = append(details, model.FieldError{Field: field, Message: "supplied more than once"})
		}
		seen[in.Role] = true
	}
	for _, role := range def.RequiredInputRoles() {
		if !seen[role] {
			details = append(details, model.FieldError{Field: "inputs." + role, Message: "required input missing"})
		}
	}
	return details
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	q := r.URL.Query()
	opts := model.DefaultListOptions()
	opts.State = model.AnalysisState(q.Get("state"))
	opts.CleanedState = model.CleanedState(q.Get("cleaned_state"))
	opts.WorkflowID = q.Get("workflow_id")
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "limit must be an integer"})
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "offset must be an integer"})
			return
		}
		opts.Offset = n
	}
	opts.Clamp()
	if err := opts.Validate(); err != nil {
		respondErr(w, reqID, err)
		return
	}

	subs, total, err := s.store.ListSubmissions(r.Context(), opts)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if subs == nil {
		subs = []*model.AnalysisSubmission{}
	}

	respondList(w, reqID, subs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

// loadSubmission fetches the submission named in the URL, writing the error
// response and returning nil when it cannot.
func (s *Server) loadSubmission(w http.ResponseWriter, r *http.Request) *model.AnalysisSubmission {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sub, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		respondErr(w, reqID, err)
		return nil
	}
	if sub == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("submission", id))
		return nil
	}
	return sub
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub := s.loadSubmission(w, r)
	if sub == nil {
		return
	}
	respondOK(w, RequestIDFromContext(r.Context()), sub)
}

type statusResponse struct {
	Submission *model.AnalysisSubmission `json:"submission"`
	Workflow   *model.WorkflowStatus     `json:"workflow"`
}

func (s *Server) handleGetSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sub := s.loadSubmission(w, r)
	if sub == nil {
		return
	}
	if s.poller == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrRemote,
			Message: "live status polling is not configured",
		})
		return
	}

	st, err := s.poller.QueryWorkflowStatus(r.Context(), sub)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, statusResponse{Submission: sub, Workflow: st})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sub := s.loadSubmission(w, r)
	if sub == nil {
		return
	}

	if sub.State != model.AnalysisStateCompleted {
		respondErr(w, reqID, &model.InvalidStateError{
			SubmissionID: sub.ID,
			Op:           "get results",
			State:        string(sub.State),
			Want:         string(model.AnalysisStateCompleted),
		})
		return
	}
	res, err := s.store.GetResults(r.Context(), sub.ID)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if res == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("results of submission", sub.ID))
		return
	}
	respondOK(w, reqID, res)
}

func (s *Server) handleCleanupSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sub := s.loadSubmission(w, r)
	if sub == nil {
		return
	}

	if err := sub.MarkCleaning(); err != nil {
		respondErr(w, reqID, err)
		return
	}
	if err := s.store.UpdateSubmission(r.Context(), sub); err != nil {
		respondErr(w, reqID, err)
		return
	}

	s.logger.Info("submission marked for cleanup", "id", sub.ID, "state", sub.State)
	respondOK(w, reqID, sub)
}
