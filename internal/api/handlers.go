package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/STRATINT/newsdesk/internal/ingestion"
	"github.com/STRATINT/newsdesk/internal/ledger"
	"github.com/STRATINT/newsdesk/internal/models"
)

// PassRunner starts collection passes.
type PassRunner interface {
	Running() bool
	RunOnce(ctx context.Context, filter ingestion.SourceFilter) (*ingestion.PassResult, error)
	RunOnceAsync(ctx context.Context, filter ingestion.SourceFilter) <-chan ingestion.PassResult
}

// Cleaner deletes articles older than the given number of days.
type Cleaner interface {
	Cleanup(ctx context.Context, days int) (int64, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the operator endpoints.
type Handler struct {
	runner        PassRunner
	cleaner       Cleaner
	ledger        *ledger.Ledger
	health        Pinger
	retentionDays int
	baseCtx       context.Context
	logger        *slog.Logger
	startTime     time.Time
}

type collectResponse struct {
	Status string                `json:"status"`
	Filter filterResponse        `json:"filter"`
	Pass   *ingestion.PassResult `json:"pass,omitempty"`
	Totals *ingestion.PassTotals `json:"totals,omitempty"`
}

type filterResponse struct {
	Source   string `json:"source,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Language string `json:"language,omitempty"`
}

// Collect handles POST /api/collect. By default the pass runs in the background and
// the response is 202; wait=true blocks until it finishes.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ingestion.SourceFilter{
		Name:     q.Get("source"),
		Kind:     models.SourceKind(q.Get("kind")),
		Language: q.Get("language"),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("unknown source kind %q", filter.Kind))
		return
	}
	echo := filterResponse{Source: filter.Name, Kind: string(filter.Kind), Language: filter.Language}

	wait, _ := strconv.ParseBool(q.Get("wait"))
	if !wait {
		if h.runner.Running() {
			writeError(w, h.logger, http.StatusConflict, ingestion.ErrPassInProgress.Error())
			return
		}
		h.runner.RunOnceAsync(h.baseCtx, filter)
		h.logger.Info("collection pass triggered", "source", filter.Name, "kind", filter.Kind, "language", filter.Language)
		writeJSON(w, h.logger, http.StatusAccepted, collectResponse{Status: "started", Filter: echo})
		return
	}

	result, err := h.runner.RunOnce(r.Context(), filter)
	switch {
	case errors.Is(err, ingestion.ErrPassInProgress):
		writeError(w, h.logger, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("collection pass failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "collection pass failed")
		return
	}
	totals := result.Totals()
	writeJSON(w, h.logger, http.StatusOK, collectResponse{Status: "finished", Filter: echo, Pass: result, Totals: &totals})
}

type cleanupResponse struct {
	Days    int   `json:"days"`
	Deleted int64 `json:"deleted"`
}

// Cleanup handles POST /api/maintenance/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := h.retentionDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, h.logger, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = v
	}

	deleted, err := h.cleaner.Cleanup(r.Context(), days)
	if err != nil {
		h.logger.Error("cleanup failed", "days", days, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, cleanupResponse{Days: days, Deleted: deleted})
}

// Ledger handles GET /api/ledger.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	query, err := parseLedgerQuery(r, time.Now())
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.ledger.Summarize(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to summarize collection runs", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}

// parseLedgerQuery reads since/until (RFC 3339), days (shorthand for since) and
// source_id.
func parseLedgerQuery(r *http.Request, now time.Time) (ledger.Query, error) {
	q := r.URL.Query()
	var query ledger.Query

	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, fmt.Errorf("invalid since: %w", err)
		}
		query.Since = t
	} else if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			return query, errors.New("days must be a positive integer")
		}
		query.Since = ingestion.RetentionCutoff(days, now)
	}

	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, fmt.Errorf("invalid until: %w", err)
		}
		query.Until = t
	}
	if !query.Since.IsZero() && !query.Until.IsZero() && !query.Until.After(query.Since) {
		return query, errors.New("until must be after since")
	}

	if raw := q.Get("source_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return query, errors.New("source_id must be a positive integer")
		}
		query.SourceID = id
	}
	return query, nil
}

type healthResponse struct {
	Status     string `json:"status"`
	Collecting bool   `json:"collecting"`
	Uptime     string `json:"uptime"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:     "ok",
		Collecting: h.runner.Running(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		resp.Status = "unavailable"
		writeJSON(w, h.logger, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
