// Package api exposes the underwriting workbench over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/rules"
	"github.com/sells-group/uw-workbench/internal/store"
)

// Options configures the router.
type Options struct {
	APIKey         string
	Timeout        time.Duration
	AllowedOrigins []string
}

// Server holds the HTTP handlers.
type Server struct {
	svc    *intake.Service
	store  store.Store
	tables *rules.Tables
	opts   Options
}

// New returns a Server over svc and st.
func New(svc *intake.Service, st store.Store, tables *rules.Tables, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{svc: svc, store: st, tables: tables, opts: opts}
}

// Handler builds the router with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(APIKey(s.opts.APIKey))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "Not Found", "No route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported for "+r.URL.Path)
	})

	s.Mount(r)
	return r
}

// Mount registers every route on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/email/intake", s.emailIntake)

		r.Route("/workitems", func(r chi.Router) {
			r.Get("/", s.listWorkItems)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getWorkItem)
				r.Put("/status", s.updateStatus)
				r.Post("/assign", s.assign)
				r.Get("/history", s.history)
				r.Post("/risk-assessment", s.riskAssessment)
				r.Post("/recommendation", s.recommendation)
				r.Get("/assignment-recommendations", s.assignmentRecommendations)
				r.Post("/info-request", s.infoRequest)
				r.Post("/guidewire", s.syncPolicy)
				r.Get("/transitions", s.transitions)
			})
		})

		r.Get("/underwriters", s.underwriters)
		r.Get("/risk/benchmarks/{industry}", s.benchmarks)
		r.Post("/risk/assess", s.assess)
		r.Get("/analytics/risk-distribution", s.riskDistribution)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
