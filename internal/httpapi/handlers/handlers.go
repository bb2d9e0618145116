package handlers

import (
	"context"

	"scenegen/internal/ledger"
	"scenegen/internal/pkg/logger"
)

// Pinger is a dependency whose reachability the deep health check reports.
type Pinger func(ctx context.Context) error

type Deps struct {
	Ledger ledger.Ledger
	// Checks are named dependencies probed by GET /health?deep=true.
	Checks map[string]Pinger
	Log    *logger.Logger
}

type Handler struct {
	ledger ledger.Ledger
	checks map[string]Pinger
	log    *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	l := d.Ledger
	if l == nil {
		l = ledger.Nop{}
	}
	return &Handler{
		ledger: l,
		checks: d.Checks,
		log:    log.WithComponent("httpapi"),
	}
}
