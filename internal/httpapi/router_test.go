package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"scenegen/internal/httpapi/handlers"
	"scenegen/internal/ledger"
	"scenegen/internal/models"
	"scenegen/internal/pkg/logger"
)

func newTestRouter(t *testing.T, checks map[string]handlers.Pinger) http.Handler {
	t.Helper()
	db, err := ledger.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	if err := db.StartRun(ctx, models.Run{ID: "run-a", Tasks: "all", Total: 3, StartedAt: start}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	for _, rec := range []models.SampleRecord{
		{RunID: "run-a", SampleID: "zoom_consistency_000000", Task: "zoom_consistency", Status: "succeeded", Attempts: 1, RecordedAt: start},
		{RunID: "run-a", SampleID: "zoom_consistency_000001", Task: "zoom_consistency", Index: 1, Status: "failed", Reason: "RENDER_TIMEOUT", Transient: true, Attempts: 3, RecordedAt: start},
		{RunID: "run-a", SampleID: "zoom_consistency_000002", Task: "zoom_consistency", Index: 2, Status: "skipped", RecordedAt: start},
	} {
		if err := db.RecordSample(ctx, rec); err != nil {
			t.Fatalf("RecordSample: %v", err)
		}
	}
	if err := db.FinishRun(ctx, "run-a", start.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	return NewRouter(Deps{Ledger: db, Checks: checks, Log: logger.Discard()})
}

func get(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (body %q)", path, err, rec.Body.String())
		}
	}
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, map[string]handlers.Pinger{
		"redis": func(context.Context) error { return stderrors.New("dial tcp: connection refused") },
	})

	t.Run("shallow", func(t *testing.T) {
		var body map[string]any
		rec := get(t, h, "/health", &body)
		if rec.Code != http.StatusOK || body["status"] != "ok" {
			t.Errorf("got %d %v", rec.Code, body)
		}
		if _, ok := body["checks"]; ok {
			t.Error("shallow health should not run checks")
		}
	})

	t.Run("deep", func(t *testing.T) {
		var body struct {
			Status string                    `json:"status"`
			Checks map[string]map[string]any `json:"checks"`
		}
		get(t, h, "/health?deep=true", &body)
		if body.Status != "degraded" {
			t.Errorf("status = %q, want degraded", body.Status)
		}
		if body.Checks["ledger"]["status"] != "ok" {
			t.Errorf("ledger check = %v", body.Checks["ledger"])
		}
		if body.Checks["redis"]["status"] != "error" {
			t.Errorf("redis check = %v", body.Checks["redis"])
		}
	})
}

func TestRuns(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "list",
			path:   "/runs",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				runs, _ := body["runs"].([]any)
				if len(runs) != 1 {
					t.Fatalf("runs = %v", body["runs"])
				}
				counts := runs[0].(map[string]any)["counts"].(map[string]any)
				if counts["succeeded"] != 1.0 || counts["failed"] != 1.0 || counts["skipped"] != 1.0 {
					t.Errorf("counts = %v", counts)
				}
			},
		},
		{
			name:   "bad limit",
			path:   "/runs?limit=0",
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				e := body["error"].(map[string]any)
				if e["code"] != "VALIDATION_ERROR" {
					t.Errorf("code = %v", e["code"])
				}
			},
		},
		{
			name:   "get",
			path:   "/runs/run-a",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				run := body["run"].(map[string]any)
				if run["id"] != "run-a" || run["finished_at"] == nil {
					t.Errorf("run = %v", run)
				}
			},
		},
		{
			name:   "missing",
			path:   "/runs/nope",
			status: http.StatusNotFound,
			check: func(t *testing.T, body map[string]any) {
				e := body["error"].(map[string]any)
				if e["code"] != "NOT_FOUND" {
					t.Errorf("code = %v", e["code"])
				}
			},
		},
		{
			name:   "failures",
			path:   "/runs/run-a/failures",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				failures := body["failures"].([]any)
				if len(failures) != 1 {
					t.Fatalf("failures = %v", failures)
				}
				f := failures[0].(map[string]any)
				if f["sample_id"] != "zoom_consistency_000001" || f["reason"] != "RENDER_TIMEOUT" {
					t.Errorf("failure = %v", f)
				}
			},
		},
		{
			name:   "failures of missing run",
			path:   "/runs/nope/failures",
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			rec := get(t, h, tt.path, &body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}
