package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/aggregate"
	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/model"
)

type queuesResponse struct {
	Summary   aggregate.Summary `json:"summary"`
	Errors    map[string]string `json:"errors,omitempty"`
	Jobs      int               `json:"jobs"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// snapshot returns the latest poll, or writes 503 when none has completed.
func (s *Server) snapshot(w http.ResponseWriter) (dashboard.Snapshot, bool) {
	snap, ok := s.hub.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no queue snapshot yet"})
	}
	return snap, ok
}

func (s *Server) handleQueues(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, queuesResponse{
		Summary:   snap.Summary,
		Errors:    snap.Errors,
		Jobs:      snap.Jobs,
		FetchedAt: snap.FetchedAt,
	})
}

// handleCompanies lists the aggregated companies. ?status keeps companies
// whose latest run in some year has that status.
func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	companies := snap.Companies
	if status := model.JobStatus(r.URL.Query().Get("status")); status != "" {
		companies = filterByStatus(companies, status)
	}
	if companies == nil {
		companies = []aggregate.CompanyStatus{}
	}
	writeJSON(w, http.StatusOK, companies)
}

func filterByStatus(companies []aggregate.CompanyStatus, status model.JobStatus) []aggregate.CompanyStatus {
	var out []aggregate.CompanyStatus
	for i := range companies {
		for y := range companies[i].Years {
			if run := companies[i].Years[y].Latest(); run != nil && run.Status == status {
				out = append(out, companies[i])
				break
			}
		}
	}
	return out
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	c := aggregate.Find(snap.Companies, key)
	if c == nil {
		writeError(w, notFound("company not found: "+key))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	queue, id := chi.URLParam(r, "queue"), chi.URLParam(r, "id")
	if err := s.client.RerunJob(r.Context(), queue, id); err != nil {
		writeError(w, err)
		return
	}
	zap.L().Info("job rerun requested", zap.String("queue", queue), zap.String("job_id", id))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: "+err.Error()))
		return
	}
	if req.Approved == nil {
		writeError(w, badRequest("approved is required"))
		return
	}

	queue, id := chi.URLParam(r, "queue"), chi.URLParam(r, "id")
	if err := s.client.ApproveJob(r.Context(), queue, id, *req.Approved); err != nil {
		writeError(w, err)
		return
	}
	zap.L().Info("job approval recorded",
		zap.String("queue", queue),
		zap.String("job_id", id),
		zap.Bool("approved", *req.Approved),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "recorded", "approved": *req.Approved})
}
