package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/store"
)

type statusRequest struct {
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by"`
}

type assignRequest struct {
	Underwriter string `json:"underwriter"`
	AssignedBy  string `json:"assigned_by"`
}

type reassessRequest struct {
	HistoricalData *model.HistoricalData `json:"historical_data"`
}

type infoRequest struct {
	Underwriter   string   `json:"underwriter"`
	MissingFields []string `json:"missing_fields"`
}

type transitionsResponse struct {
	WorkItemID         string         `json:"work_item_id"`
	CurrentStatus      model.Status   `json:"current_status"`
	AllowedTransitions []model.Status `json:"allowed_transitions"`
	IsTerminal         bool           `json:"is_terminal"`
}

// decode reads a JSON body. Empty bodies are accepted when optional.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return eris.Wrap(intake.ErrInvalidRequest, "body could not be decoded")
	}
	return nil
}

func (s *Server) emailIntake(w http.ResponseWriter, r *http.Request) {
	var req intake.Request
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Intake(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listWorkItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.WorkItemFilter{
		Status:     model.Status(strings.ToLower(q.Get("status"))),
		Priority:   model.Priority(strings.ToLower(q.Get("priority"))),
		AssignedTo: q.Get("assigned_to"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "Invalid Request", "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "Invalid Request", "offset must be a non-negative integer")
		return
	}

	items, err := s.store.ListWorkItems(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.WorkItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func (s *Server) getWorkItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetWorkItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeProblem(w, r, http.StatusBadRequest, "Invalid Request", "status is required")
		return
	}
	item, err := s.svc.Transition(r.Context(), chi.URLParam(r, "id"), model.Status(req.Status), req.Reason, req.ChangedBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.svc.Assign(r.Context(), chi.URLParam(r, "id"), req.Underwriter, req.AssignedBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetWorkItem(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.store.ListHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) riskAssessment(w http.ResponseWriter, r *http.Request) {
	var req reassessRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	ra, err := s.svc.Reassess(r.Context(), chi.URLParam(r, "id"), req.HistoricalData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ra)
}

func (s *Server) recommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Recommend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) assignmentRecommendations(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetWorkItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Assigner().Recommendations(item.Fields))
}

func (s *Server) infoRequest(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := s.svc.RequestInfo(r.Context(), chi.URLParam(r, "id"), req.Underwriter, req.MissingFields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) syncPolicy(w http.ResponseWriter, r *http.Request) {
	ref, err := s.svc.SyncPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) transitions(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetWorkItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	m := s.svc.Machine()
	allowed := m.AllowedTransitions(item.Status)
	if allowed == nil {
		allowed = []model.Status{}
	}
	writeJSON(w, http.StatusOK, transitionsResponse{
		WorkItemID:         item.ID,
		CurrentStatus:      item.Status,
		AllowedTransitions: allowed,
		IsTerminal:         m.IsTerminal(item.Status),
	})
}
