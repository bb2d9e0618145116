package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scenegen/internal/models"
	"scenegen/internal/pkg/errors"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger", "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRecord(runID, id, status string) models.SampleRecord {
	return models.SampleRecord{
		RunID:      runID,
		SampleID:   id,
		Task:       "zoom_consistency",
		Status:     status,
		Attempts:   1,
		RecordedAt: time.Now(),
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := db.StartRun(ctx, models.Run{ID: "run-1", Tasks: "zoom_consistency", Total: 4, StartedAt: start}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	for _, r := range []models.SampleRecord{
		sampleRecord("run-1", "zoom_consistency_000000", "succeeded"),
		sampleRecord("run-1", "zoom_consistency_000001", "skipped"),
		sampleRecord("run-1", "zoom_consistency_000002", "failed"),
		sampleRecord("run-1", "zoom_consistency_000003", "failed"),
	} {
		if err := db.RecordSample(ctx, r); err != nil {
			t.Fatalf("RecordSample %s: %v", r.SampleID, err)
		}
	}

	run, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil before finish", run.FinishedAt)
	}
	want := models.RunCounts{Succeeded: 1, Skipped: 1, Failed: 2}
	if run.Counts != want {
		t.Errorf("counts = %+v, want %+v", run.Counts, want)
	}
	if !run.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, start)
	}

	if err := db.FinishRun(ctx, "run-1", start.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, _ = db.GetRun(ctx, "run-1")
	if run.FinishedAt == nil || !run.FinishedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("FinishedAt = %v", run.FinishedAt)
	}
}

func TestSQLite_RecordReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.StartRun(ctx, models.Run{ID: "r", StartedAt: time.Now()}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	failed := sampleRecord("r", "s1", "failed")
	failed.Reason = "RENDER_TIMEOUT"
	failed.Transient = true
	failed.Attempts = 3
	if err := db.RecordSample(ctx, failed); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}

	got, err := db.Failures(ctx, "r")
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(got) != 1 || got[0].Reason != "RENDER_TIMEOUT" || !got[0].Transient || got[0].Attempts != 3 {
		t.Fatalf("Failures = %+v", got)
	}

	if err := db.RecordSample(ctx, sampleRecord("r", "s1", "succeeded")); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}
	got, _ = db.Failures(ctx, "r")
	if len(got) != 0 {
		t.Errorf("expected no failures after replacement, got %d", len(got))
	}
	run, _ := db.GetRun(ctx, "r")
	if run.Counts.Succeeded != 1 || run.Counts.Failed != 0 {
		t.Errorf("counts = %+v", run.Counts)
	}
}

func TestSQLite_ListRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		if err := db.StartRun(ctx, models.Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("StartRun %s: %v", id, err)
		}
	}

	runs, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("ListRuns = %+v, want c then b", runs)
	}
}

func TestSQLite_NotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.GetRun(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("GetRun error = %v, want not found", err)
	}
	if err := db.FinishRun(ctx, "missing", time.Now()); !IsNotFound(err) {
		t.Errorf("FinishRun error = %v, want not found", err)
	}
}

func TestSQLite_DuplicateRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := models.Run{ID: "dup", StartedAt: time.Now()}
	if err := db.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := db.StartRun(ctx, run); err == nil {
		t.Error("expected error on duplicate run id")
	}
}

func TestSQLite_ConcurrentRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.StartRun(ctx, models.Run{ID: "r", StartedAt: time.Now()}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := sampleRecord("r", fmt.Sprintf("s%03d", i), "succeeded")
			if err := db.RecordSample(ctx, r); err != nil {
				t.Errorf("RecordSample: %v", err)
			}
		}(i)
	}
	wg.Wait()

	run, err := db.GetRun(ctx, "r")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Counts.Succeeded != 50 {
		t.Errorf("succeeded = %d, want 50", run.Counts.Succeeded)
	}
}

func TestSQLite_ErrorsAreCoded(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenSQLite(filepath.Join(blocker, "ledger", "l.db"))
	if err == nil {
		t.Fatal("expected error opening under a regular file")
	}
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %T is not coded: %v", err, err)
	}
	if e.Code != errors.CodeInternal || e.Op != "ledger.sqlite" {
		t.Errorf("got code=%s op=%s, want %s ledger.sqlite", e.Code, e.Op, errors.CodeInternal)
	}

	db := openTestDB(t)
	run := models.Run{ID: "dup", StartedAt: time.Now()}
	if err := db.StartRun(context.Background(), run); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	err = db.StartRun(context.Background(), run)
	if err == nil || !strings.Contains(err.Error(), "start run") {
		t.Errorf("duplicate StartRun error = %v, want coded start run failure", err)
	}
	if errors.GetCode(err) != errors.CodeInternal {
		t.Errorf("duplicate StartRun code = %s", errors.GetCode(err))
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	l, err := Open(ctx, "")
	if err != nil {
		t.Fatalf("Open empty: %v", err)
	}
	if _, ok := l.(Nop); !ok {
		t.Errorf("Open(\"\") = %T, want Nop", l)
	}

	l, err = Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "l.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer l.Close()
	if _, ok := l.(*SQLite); !ok {
		t.Errorf("Open(sqlite:) = %T, want *SQLite", l)
	}
}

func TestNop(t *testing.T) {
	var n Nop
	ctx := context.Background()
	if err := n.RecordSample(ctx, models.SampleRecord{}); err != nil {
		t.Error(err)
	}
	if _, err := n.GetRun(ctx, "x"); !IsNotFound(err) {
		t.Errorf("GetRun = %v", err)
	}
	runs, _ := n.ListRuns(ctx, 10)
	if runs == nil || len(runs) != 0 {
		t.Errorf("ListRuns = %v", runs)
	}
}
