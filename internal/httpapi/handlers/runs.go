package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"scenegen/internal/httpkit"
	"scenegen/internal/ledger"
	"scenegen/internal/models"
	"scenegen/internal/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListRuns returns the most recent runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) error {
	limit, ok := httpkit.QueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		return errors.ValidationField("limit", fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
	}

	runs, err := h.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		return errors.Wrap(err, "httpapi.list_runs", "list runs")
	}
	if runs == nil {
		runs = []models.Run{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"limit": limit,
	})
	return nil
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) error {
	id := strings.TrimSpace(chi.URLParam(r, "runId"))
	run, err := h.ledger.GetRun(r.Context(), id)
	if ledger.IsNotFound(err) {
		return errors.NotFound("run", id)
	}
	if err != nil {
		return errors.Wrap(err, "httpapi.get_run", "get run")
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"run": run})
	return nil
}

// ListFailures returns the failed samples of a run with their reasons.
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) error {
	id := strings.TrimSpace(chi.URLParam(r, "runId"))
	if _, err := h.ledger.GetRun(r.Context(), id); err != nil {
		if ledger.IsNotFound(err) {
			return errors.NotFound("run", id)
		}
		return errors.Wrap(err, "httpapi.list_failures", "get run")
	}

	failures, err := h.ledger.Failures(r.Context(), id)
	if err != nil {
		return errors.Wrap(err, "httpapi.list_failures", "list failures")
	}
	if failures == nil {
		failures = []models.SampleRecord{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"run_id":   id,
		"failures": failures,
	})
	return nil
}
