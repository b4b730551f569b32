package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/pkg/model"
)

// defaultListLimit caps unfiltered run listings; the ledger holds one
// row per run the telescope ever took.
const defaultListLimit = 500

type statusResponse struct {
	Status string         `json:"status"`
	Uptime string         `json:"uptime"`
	Runs   map[string]int `json:"runs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("count by status", "error", err, "request_id", reqID)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "ledger unavailable"})
		return
	}

	runs := make(map[string]int, len(counts))
	for st, n := range counts {
		runs[st.String()] = n
	}
	respondOK(w, reqID, statusResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
		Runs:   runs,
	})
}

type runResponse struct {
	Night     int             `json:"night"`
	RunID     int             `json:"run_id"`
	Extension string          `json:"extension"`
	Status    string          `json:"processing_status"`
	Available map[string]bool `json:"available"`
	Events    *int            `json:"events,omitempty"`
}

func runFromRecord(rec *model.ProcessingRecord) runResponse {
	return runResponse{
		Night:     rec.Night,
		RunID:     rec.RunID,
		Extension: rec.Extension,
		Status:    rec.Status.String(),
		Available: rec.Available,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	f, err := filterFromQuery(r)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			&model.APIError{Code: model.ErrValidation, Message: err.Error()})
		return
	}

	records, err := s.store.ListRecords(r.Context(), f)
	if err != nil {
		s.logger.Error("list records", "error", err, "request_id", reqID)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "ledger unavailable"})
		return
	}

	runs := make([]runResponse, 0, len(records))
	for _, rec := range records {
		runs = append(runs, runFromRecord(rec))
	}
	respondOK(w, reqID, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	key, err := keyFromURL(r)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			&model.APIError{Code: model.ErrValidation, Message: err.Error()})
		return
	}

	rec, err := s.store.GetRecord(r.Context(), key)
	if err != nil {
		s.logger.Error("get record", "error", err, "request_id", reqID)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "ledger unavailable"})
		return
	}
	if rec == nil {
		respondError(w, reqID, http.StatusNotFound,
			&model.APIError{Code: model.ErrNotFound, Message: fmt.Sprintf("run %s not recorded", key)})
		return
	}

	events, err := s.store.CountEvents(r.Context(), key)
	if err != nil {
		s.logger.Error("count events", "error", err, "request_id", reqID)
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: "ledger unavailable"})
		return
	}

	run := runFromRecord(rec)
	run.Events = &events
	respondOK(w, reqID, run)
}

// filterFromQuery builds a ledger filter from the list query string:
// ?status=0|1|2&night=YYYYMMDD&filesystem=name&limit=n.
func filterFromQuery(r *http.Request) (ledger.Filter, error) {
	f := ledger.Filter{
		Filesystem: r.URL.Query().Get("filesystem"),
		Limit:      defaultListLimit,
	}

	if v := r.URL.Query().Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("status must be an integer, got %q", v)
		}
		st, err := model.ParseStatus(n)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	if v := r.URL.Query().Get("night"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("night must be an integer, got %q", v)
		}
		f.Night = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("limit must be a positive integer, got %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

// keyFromURL decodes the {night}/{runId} path parameters.
func keyFromURL(r *http.Request) (model.RunKey, error) {
	night, err := strconv.Atoi(chi.URLParam(r, "night"))
	if err != nil {
		return model.RunKey{}, fmt.Errorf("night must be an integer")
	}
	runID, err := strconv.Atoi(chi.URLParam(r, "runId"))
	if err != nil {
		return model.RunKey{}, fmt.Errorf("runId must be an integer")
	}
	return model.RunKey{Night: night, RunID: runID}, nil
}
