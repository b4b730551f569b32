package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/pkg/model"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := ledger.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	records := []*model.ProcessingRecord{
		{RunKey: model.RunKey{Night: 20230101, RunID: 5}, Extension: "fz",
			Available: map[string]bool{"isdc": true}},
		{RunKey: model.RunKey{Night: 20230101, RunID: 6}, Extension: "gz",
			Available: map[string]bool{"isdc": true}},
		{RunKey: model.RunKey{Night: 20230102, RunID: 1},
			Available: map[string]bool{"isdc": false}},
	}
	if err := st.InsertRecords(context.Background(), records); err != nil {
		t.Fatalf("insert records: %v", err)
	}
	events := []model.Event{
		{Night: 20230101, RunID: 6, EventNr: 1, UTCSeconds: 10, EventType: 4, RunType: model.RunTypeData},
		{Night: 20230101, RunID: 6, EventNr: 2, UTCSeconds: 11, EventType: 4, RunType: model.RunTypeData},
	}
	if err := st.RecordResult(context.Background(), model.RunKey{Night: 20230101, RunID: 6}, "gz", false, events); err != nil {
		t.Fatalf("record result: %v", err)
	}

	return New(st, logger)
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *model.APIError `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s: status=%d, want 200, body=%s", path, w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func TestStatus(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/status")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if !strings.HasPrefix(env.RequestID, "req_") {
		t.Errorf("request_id = %q, want req_ prefix", env.RequestID)
	}

	var data struct {
		Runs map[string]int `json:"runs"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Runs["NOT_PROCESSED"] != 2 || data.Runs["PROCESSED"] != 1 {
		t.Errorf("runs = %v", data.Runs)
	}
}

func TestListRuns(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/runs/")

	var runs []runResponse
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	// Ordered by (night, runId).
	if runs[0].RunID != 5 || runs[2].Night != 20230102 {
		t.Errorf("runs out of order: %+v", runs)
	}
}

func TestListRunsFilters(t *testing.T) {
	srv := testServer(t)

	env := doGet(t, srv, "/api/v1/runs/?status=1")
	var runs []runResponse
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 1 || runs[0].RunID != 6 {
		t.Errorf("status filter: %+v", runs)
	}

	env = doGet(t, srv, "/api/v1/runs/?night=20230102")
	runs = nil
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 1 || runs[0].Night != 20230102 {
		t.Errorf("night filter: %+v", runs)
	}

	env = doGet(t, srv, "/api/v1/runs/?filesystem=isdc")
	runs = nil
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 2 {
		t.Errorf("filesystem filter: %+v", runs)
	}
}

func TestListRunsRejectsBadStatus(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/runs/?status=nope", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("error = %v, want VALIDATION_ERROR", env.Error)
	}
}

func TestGetRun(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/runs/20230101/6")

	var run runResponse
	json.Unmarshal(env.Data, &run)
	if run.Status != "PROCESSED" {
		t.Errorf("processing status = %q, want PROCESSED", run.Status)
	}
	if run.Events == nil || *run.Events != 2 {
		t.Errorf("events = %v, want 2", run.Events)
	}
	if !run.Available["isdc"] {
		t.Errorf("availability = %v", run.Available)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/runs/20991231/1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.Status != "error" || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %v, want NOT_FOUND", env.Error)
	}
}
