package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/store"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := Problem{Type: "about:blank", Title: title, Status: status, Detail: detail}
	if r != nil {
		p.Instance = r.URL.Path
	}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		zap.L().Warn("api: encode problem", zap.Error(err))
	}
}

// writeError maps service errors to HTTP problems.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := zap.L().With(zap.String("path", r.URL.Path), zap.Error(err))
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug("api: not found")
		writeProblem(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, intake.ErrInvalidTransition):
		log.Info("api: invalid transition")
		writeProblem(w, r, http.StatusBadRequest, "Invalid Transition", err.Error())
	case errors.Is(err, intake.ErrInvalidRequest):
		log.Info("api: invalid request")
		writeProblem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, intake.ErrDuplicate):
		log.Info("api: duplicate submission")
		writeProblem(w, r, http.StatusConflict, "Duplicate Submission", err.Error())
	case errors.Is(err, intake.ErrPolicySyncDisabled):
		writeProblem(w, r, http.StatusServiceUnavailable, "Policy System Unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("api: timeout")
		writeProblem(w, r, http.StatusGatewayTimeout, "Timeout", "Operation took too long.")
	default:
		log.Error("api: internal error")
		writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "The request could not be completed.")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
