package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/resilience"
	"github.com/sells-group/extraction-ops/internal/store"
)

// apiError is an error with the HTTP status it maps to.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &apiError{status: http.StatusBadRequest, msg: msg}
}

func notFound(msg string) error {
	return &apiError{status: http.StatusNotFound, msg: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

// writeError maps err to a status code and writes {"error": msg}.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		return ae.status
	case errors.Is(err, store.ErrNotFound), errors.Is(err, dashboard.ErrNoYears):
		return http.StatusNotFound
	}

	// Upstream pipeline API failures.
	switch code := resilience.StatusCode(err); {
	case code == http.StatusNotFound:
		return http.StatusNotFound
	case code == http.StatusBadRequest || code == http.StatusConflict:
		return http.StatusBadRequest
	case code != 0:
		return http.StatusBadGateway
	}
	if resilience.IsTransient(err) || errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("invalid " + name + ": " + raw)
	}
	return n, nil
}

// comparisonQuery reads the year and threshold parameters.
func comparisonQuery(r *http.Request) (dashboard.Query, error) {
	var q dashboard.Query
	year, err := queryInt(r, "year")
	if err != nil {
		return q, err
	}
	q.Year = year

	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || t < 0 {
			return q, badRequest("invalid threshold: " + raw)
		}
		q.Threshold = &t
	}
	return q, nil
}
