// Package httpapi serves read-only run status from the ledger.
package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"scenegen/internal/httpapi/handlers"
	"scenegen/internal/httpkit"
	"scenegen/internal/ledger"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/pkg/middleware"
)

type Deps struct {
	Ledger ledger.Ledger
	Checks map[string]handlers.Pinger
	Log    *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	allowedOrigins := envCSV("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:8081",
		"http://localhost:5173",
	})
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(handlers.Deps{
		Ledger: d.Ledger,
		Checks: d.Checks,
		Log:    log,
	})

	r.Get("/health", h.Health)

	r.Get("/runs", middleware.WrapHandler(log, h.ListRuns))
	r.Get("/runs/{runId}", middleware.WrapHandler(log, h.GetRun))
	r.Get("/runs/{runId}/failures", middleware.WrapHandler(log, h.ListFailures))

	return r
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
