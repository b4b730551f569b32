package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fact-project/eventlist/internal/ledger"
	"github.com/fact-project/eventlist/internal/rawdata"
	"github.com/fact-project/eventlist/pkg/model"
)

const run5CSV = `night,runId,eventNr,UTC,UTCus,eventType,runType
20230101,5,1,1672531200,100,4,1
20230101,5,2,1672531201,250,1024,1
`

// writeTestConfig writes a minimal config into dir and returns its
// path and the database path it points at.
func writeTestConfig(t *testing.T, dir, rawRoot string) (cfgPath, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(dir, "eventlist.db")
	cfgPath = filepath.Join(dir, "eventlist.yaml")

	content := fmt.Sprintf(`processing_database:
  path: %s
submitter:
  log_directory: %s
  data_directory: %s
filesystems:
  isdc: %s
`, dbPath, dir, dir, rawRoot)
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dbPath
}

func openTestLedger(t *testing.T, dbPath string) *ledger.SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := ledger.Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

func TestProcessFileCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath, dbPath := writeTestConfig(t, dir, dir)

	csv := filepath.Join(dir, "20230101_005.fits.fz.csv")
	if err := os.WriteFile(csv, []byte(run5CSV), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runCommand(t, "--config", cfgPath, "process-file", "--file", csv, "--ignore-db")
	if err != nil {
		t.Fatalf("process-file: %v", err)
	}

	st := openTestLedger(t, dbPath)
	key := model.RunKey{Night: 20230101, RunID: 5}
	rec, err := st.GetRecord(context.Background(), key)
	if err != nil || rec == nil {
		t.Fatalf("GetRecord = %v, %v", rec, err)
	}
	if rec.Status != model.StatusProcessed {
		t.Errorf("status = %v, want PROCESSED", rec.Status)
	}
	if n, _ := st.CountEvents(context.Background(), key); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
}

func TestProcessFileCommandRequiresInput(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _ := writeTestConfig(t, dir, dir)
	t.Setenv("FILE", "")

	if err := runCommand(t, "--config", cfgPath, "process-file"); err == nil {
		t.Fatal("expected error without --file or FILE")
	}
}

func TestUpdateFSStatusCommand(t *testing.T) {
	dir := t.TempDir()
	rawRoot := filepath.Join(dir, "raw")
	cfgPath, dbPath := writeTestConfig(t, dir, rawRoot)

	key := model.RunKey{Night: 20230101, RunID: 5}
	st := openTestLedger(t, dbPath)
	err := st.InsertRecords(context.Background(), []*model.ProcessingRecord{{
		RunKey:    key,
		Status:    model.StatusNotProcessed,
		Available: map[string]bool{"isdc": false},
	}})
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}

	path := rawdata.PathFor(rawRoot, key, "fz")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, "--config", cfgPath, "update-fs-status", "--filesystem", "isdc"); err != nil {
		t.Fatalf("update-fs-status: %v", err)
	}

	rec, err := st.GetRecord(context.Background(), key)
	if err != nil || rec == nil {
		t.Fatalf("GetRecord = %v, %v", rec, err)
	}
	if !rec.AvailableOn("isdc") || rec.Extension != "fz" {
		t.Errorf("record = ext %q, availability %v", rec.Extension, rec.Available)
	}
}

func TestFillFromCSVCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath, dbPath := writeTestConfig(t, dir, dir)

	outDir := filepath.Join(dir, "output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	csv := filepath.Join(outDir, "20230101_005.fits.fz.csv")
	if err := os.WriteFile(csv, []byte(run5CSV), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, "--config", cfgPath, "fill-from-csv"); err != nil {
		t.Fatalf("fill-from-csv: %v", err)
	}

	if _, err := os.Stat(csv); !os.IsNotExist(err) {
		t.Errorf("committed file still present: %v", err)
	}
	st := openTestLedger(t, dbPath)
	rec, _ := st.GetRecord(context.Background(), model.RunKey{Night: 20230101, RunID: 5})
	if rec == nil || rec.Status != model.StatusProcessed {
		t.Errorf("record = %+v, want PROCESSED", rec)
	}
}
