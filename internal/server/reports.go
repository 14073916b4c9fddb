package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/store"
)

type saveReportRequest struct {
	Year      int      `json:"year"`
	Threshold *float64 `json:"threshold"`
	Note      string   `json:"note"`
}

// reportStore returns the store, or writes 503 when none is configured.
func (s *Server) reportStore(w http.ResponseWriter) (store.Store, bool) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "report store not configured"})
		return nil, false
	}
	return s.store, true
}

// handleSaveReport snapshots the overview and worst companies of a year.
// The body is optional.
func (s *Server) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	st, ok := s.reportStore(w)
	if !ok {
		return
	}

	var req saveReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, badRequest("invalid request body: "+err.Error()))
		return
	}
	if req.Threshold != nil && *req.Threshold < 0 {
		writeError(w, badRequest("threshold must be >= 0"))
		return
	}

	q := dashboard.Query{Year: req.Year, Threshold: req.Threshold}
	ov, err := s.comparator.Overview(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	q.Year = ov.Year
	worst, err := s.comparator.Worst(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}

	rep := store.NewReport(ov, worst, req.Note)
	if err := st.SaveReport(r.Context(), rep); err != nil {
		writeError(w, err)
		return
	}
	zap.L().Info("report saved", zap.String("report_id", rep.ID.String()), zap.Int("year", rep.Year))
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	st, ok := s.reportStore(w)
	if !ok {
		return
	}

	var filter store.ReportFilter
	var err error
	if filter.Year, err = queryInt(r, "year"); err != nil {
		writeError(w, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, err)
		return
	}

	reports, err := st.ListReports(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []store.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	st, ok := s.reportStore(w)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, badRequest("invalid report id: "+chi.URLParam(r, "id")))
		return
	}

	rep, err := st.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	st, ok := s.reportStore(w)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	if _, known := s.catalog().Get(key); !known {
		writeError(w, notFound("unknown data point: "+key))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	hist, err := st.DataPointHistory(r.Context(), key, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if hist == nil {
		hist = []store.DataPointHistory{}
	}
	writeJSON(w, http.StatusOK, hist)
}
