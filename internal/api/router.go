package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/STRATINT/newsdesk/internal/auth"
	"github.com/STRATINT/newsdesk/internal/ledger"
	"github.com/STRATINT/newsdesk/internal/metrics"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Runner        PassRunner
	Cleaner       Cleaner
	Ledger        *ledger.Ledger
	Health        Pinger
	Auth          *auth.Authenticator
	Metrics       *metrics.HTTPCollector
	RetentionDays int
	// BaseContext parents background passes started over HTTP. It should be cancelled
	// on shutdown.
	BaseContext context.Context
	Logger      *slog.Logger
}

// Router builds the HTTP handler for the operator API.
func Router(deps Deps) http.Handler {
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	h := &Handler{
		runner:        deps.Runner,
		cleaner:       deps.Cleaner,
		ledger:        deps.Ledger,
		health:        deps.Health,
		retentionDays: deps.RetentionDays,
		baseCtx:       baseCtx,
		logger:        deps.Logger,
		startTime:     time.Now(),
	}
	authHandler := NewAuthHandler(deps.Auth, deps.Logger)
	protected := deps.Auth.Middleware

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("POST /api/collect", protected(http.HandlerFunc(h.Collect)))
	mux.Handle("POST /api/maintenance/cleanup", protected(http.HandlerFunc(h.Cleanup)))
	mux.HandleFunc("GET /api/ledger", h.Ledger)

	if deps.Metrics == nil {
		return mux
	}
	mux.Handle("GET /metrics", deps.Metrics.Handler())
	return deps.Metrics.InstrumentHandler(mux)
}
