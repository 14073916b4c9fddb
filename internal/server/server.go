// Package server exposes the dashboard over a JSON HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/config"
	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/store"
	"github.com/sells-group/extraction-ops/pkg/garbo"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	cfg        config.ServerConfig
	client     garbo.Client
	hub        *dashboard.Hub[dashboard.Snapshot]
	comparator *dashboard.Comparator
	store      store.Store
}

// New creates a server. st may be nil, in which case the report routes
// answer 503.
func New(cfg config.ServerConfig, client garbo.Client, hub *dashboard.Hub[dashboard.Snapshot], cmp *dashboard.Comparator, st store.Store) *Server {
	return &Server{
		cfg:        cfg,
		client:     client,
		hub:        hub,
		comparator: cmp,
		store:      st,
	}
}

// Routes returns the API router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/queues", s.handleQueues)
		r.Post("/queues/{queue}/jobs/{id}/rerun", s.handleRerun)
		r.Post("/queues/{queue}/jobs/{id}/approve", s.handleApprove)

		r.Get("/companies", s.handleCompanies)
		r.Get("/companies/{key}", s.handleCompany)

		r.Route("/errors", func(r chi.Router) {
			r.Get("/years", s.handleYears)
			r.Get("/overview", s.handleOverview)
			r.Get("/datapoints/{key}", s.handleDataPoint)
			r.Get("/worst", s.handleWorst)
			r.Get("/export.csv", s.handleExportCSV)
			r.Get("/export.xlsx", s.handleExportXLSX)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.handleSaveReport)
			r.Get("/", s.handleListReports)
			r.Get("/{id}", s.handleGetReport)
			r.Get("/history/{key}", s.handleHistory)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs every request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
