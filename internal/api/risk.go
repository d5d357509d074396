package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/risk"
)

type assessRequest struct {
	Fields         model.Fields          `json:"fields"`
	HistoricalData *model.HistoricalData `json:"historical_data"`
}

// underwriters lists the active roster. An empty roster table falls back
// to the configured pools.
func (s *Server) underwriters(w http.ResponseWriter, r *http.Request) {
	roster, err := s.store.ListUnderwriters(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	active := make([]model.Underwriter, 0, len(roster))
	for _, u := range roster {
		if u.Active {
			active = append(active, u)
		}
	}
	if len(active) == 0 {
		active = append(active, s.tables.Roster()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"underwriters": active})
}

func (s *Server) benchmarks(w http.ResponseWriter, r *http.Request) {
	industry := normalize.ToLowerSafe(chi.URLParam(r, "industry"))
	writeJSON(w, http.StatusOK, risk.IndustryBenchmarks(industry))
}

func (s *Server) assess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Fields) == 0 {
		writeProblem(w, r, http.StatusBadRequest, "Invalid Request", "fields is required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Evaluate(req.Fields, req.HistoricalData))
}

func (s *Server) riskDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := s.store.RiskDistribution(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}
