package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/STRATINT/newsdesk/internal/config"
	"github.com/STRATINT/newsdesk/internal/delivery"
	"github.com/STRATINT/newsdesk/internal/enrichment"
	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	recordTimeout  = 10 * time.Second
	publishTimeout = 30 * time.Second
)

// EnrichFailurePolicy decides what happens to a new item whose enrichment failed.
type EnrichFailurePolicy string

const (
	// EnrichKeep persists the item with a content excerpt as its summary.
	EnrichKeep EnrichFailurePolicy = "keep"
	// EnrichSkip drops the item and counts it as an item error.
	EnrichSkip EnrichFailurePolicy = "skip"
)

// Item outcomes reported to the Observer.
const (
	OutcomeNew            = "new"
	OutcomeDuplicateURL   = "duplicate_url"
	OutcomeDuplicateTitle = "duplicate_title"
	OutcomeFiltered       = "filtered"
	OutcomeLateDuplicate  = "late_duplicate"
	OutcomeError          = "error"
)

// OrchestratorConfig tunes a collection pass.
type OrchestratorConfig struct {
	MaxConcurrentSources int
	RequestsPerMinute    int
	Burst                int
	Retry                RetryPolicy
	SourceTimeout        time.Duration
	PassTimeout          time.Duration
	Windows              DedupWindows
	DedupWithinPass      bool
	EnrichFailure        EnrichFailurePolicy
	Filters              FilterConfig
}

// NewOrchestratorConfig maps the collection settings loaded from the environment.
func NewOrchestratorConfig(cfg config.CollectionConfig) OrchestratorConfig {
	retry := DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryAttempts
	retry.BaseDelay = cfg.RetryBaseDelay
	retry.Multiplier = cfg.RetryMultiplier

	return OrchestratorConfig{
		MaxConcurrentSources: cfg.MaxConcurrent,
		RequestsPerMinute:    cfg.RequestsPerMinute,
		Burst:                cfg.Burst,
		Retry:                retry,
		SourceTimeout:        cfg.SourceTimeout,
		PassTimeout:          cfg.PassTimeout,
		Windows:              DedupWindows{URL: cfg.URLWindow, Title: cfg.TitleWindow},
		DedupWithinPass:      cfg.DedupWithinPass,
		EnrichFailure:        EnrichFailurePolicy(cfg.EnrichFailure),
		Filters: FilterConfig{
			MinContentLength:  cfg.MinContentLength,
			MaxArticleAgeDays: cfg.MaxArticleAgeDays,
			BlockedDomains:    cfg.BlockedDomains,
			RequiredKeywords:  cfg.RequiredKeywords,
		},
	}
}

// Observer receives pass telemetry. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveRun(run models.CollectionRun)
	ObserveItem(source, outcome string)
	ObserveEnrichment(ok bool)
	ObservePass(duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRun(models.CollectionRun) {}
func (noopObserver) ObserveItem(string, string)      {}
func (noopObserver) ObserveEnrichment(bool)          {}
func (noopObserver) ObservePass(time.Duration)       {}

// SourceFilter restricts a pass to matching sources. Empty fields match everything.
type SourceFilter struct {
	Name     string
	Kind     models.SourceKind
	Language string
}

// Match reports whether source passes the filter. Names and languages compare
// case-insensitively.
func (f SourceFilter) Match(source models.Source) bool {
	if f.Name != "" && !strings.EqualFold(f.Name, source.Name) {
		return false
	}
	if f.Kind != "" && f.Kind != source.Kind {
		return false
	}
	return f.Language == "" || strings.EqualFold(f.Language, source.Language)
}

// PassResult summarizes one collection pass.
type PassResult struct {
	PassID        string                 `json:"pass_id"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
	Runs          []models.CollectionRun `json:"runs"`
	NewArticles   []models.Article       `json:"-"`
	DeliveryError error                  `json:"-"`
	Err           error                  `json:"-"`
}

// PassTotals aggregates the run counters of a pass.
type PassTotals struct {
	Sources      int `json:"sources"`
	Succeeded    int `json:"succeeded"`
	Partial      int `json:"partial"`
	Failed       int `json:"failed"`
	Found        int `json:"found"`
	New          int `json:"new"`
	SkippedURL   int `json:"skipped_url"`
	SkippedTitle int `json:"skipped_title"`
	Errors       int `json:"errors"`
}

// Totals sums the counters of every run in the pass.
func (r *PassResult) Totals() PassTotals {
	var t PassTotals
	for i := range r.Runs {
		run := &r.Runs[i]
		t.Sources++
		switch run.Status {
		case models.RunStatusSuccess:
			t.Succeeded++
		case models.RunStatusPartial:
			t.Partial++
		case models.RunStatusFailed:
			t.Failed++
		}
		t.Found += run.ArticlesFound
		t.New += run.ArticlesNew
		t.SkippedURL += run.SkippedURL
		t.SkippedTitle += run.SkippedTitle
		t.Errors += run.Errors()
	}
	return t
}

// Run returns the run recorded for the named source.
func (r *PassResult) Run(sourceName string) (models.CollectionRun, bool) {
	for _, run := range r.Runs {
		if run.SourceName == sourceName {
			return run, true
		}
	}
	return models.CollectionRun{}, false
}

// Orchestrator drives collection passes across all enabled sources.
type Orchestrator struct {
	cfg       OrchestratorConfig
	registry  *Registry
	store     ArticleStore
	sources   SourceRepository
	enricher  enrichment.Enricher
	publisher delivery.Publisher
	observer  Observer
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time
	running   atomic.Bool
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithObserver reports pass telemetry to obs.
func WithObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithPublisher hands every pass's new articles to p.
func WithPublisher(p delivery.Publisher) OrchestratorOption {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithLimiter replaces the limiter built from RequestsPerMinute and Burst.
func WithLimiter(l *rate.Limiter) OrchestratorOption {
	return func(o *Orchestrator) { o.limiter = l }
}

// NewOrchestrator wires the collection pipeline.
func NewOrchestrator(cfg OrchestratorConfig, registry *Registry, store ArticleStore, sources SourceRepository, enricher enrichment.Enricher, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if cfg.MaxConcurrentSources < 1 {
		cfg.MaxConcurrentSources = 1
	}
	if cfg.Windows.URL <= 0 || cfg.Windows.Title <= 0 {
		def := DefaultDedupWindows()
		if cfg.Windows.URL <= 0 {
			cfg.Windows.URL = def.URL
		}
		if cfg.Windows.Title <= 0 {
			cfg.Windows.Title = def.Title
		}
	}
	if cfg.EnrichFailure == "" {
		cfg.EnrichFailure = EnrichKeep
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		store:    store,
		sources:  sources,
		enricher: enricher,
		observer: noopObserver{},
		limiter:  newLimiter(cfg.RequestsPerMinute, cfg.Burst),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// Running reports whether a pass is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunOnce executes one pass over the enabled sources matching filter. Source failures
// are recorded in their runs; an error is returned only when the pass could not start.
func (o *Orchestrator) RunOnce(ctx context.Context, filter SourceFilter) (*PassResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer o.running.Store(false)

	if o.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.PassTimeout)
		defer cancel()
	}

	result := &PassResult{PassID: uuid.NewString(), StartedAt: o.now().UTC()}
	logger := o.logger.With("pass_id", result.PassID)

	enabled, err := o.sources.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var sources []models.Source
	for _, src := range enabled {
		if filter.Match(src) {
			sources = append(sources, src)
		}
	}

	index, err := BuildDuplicateIndex(ctx, o.store, o.cfg.Windows, result.StartedAt)
	if err != nil {
		logger.Error("collection pass aborted", "error", err)
		return nil, err
	}
	if o.cfg.DedupWithinPass {
		index = index.WithPassGuard(NewPassTitleGuard())
	}
	urls, titles := index.Size()
	logger.Info("collection pass started", "sources", len(sources), "known_urls", urls, "known_titles", titles)

	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrentSources))
	outcomes := make(chan sourceOutcome, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src models.Source) {
			defer wg.Done()
			outcomes <- o.runSource(ctx, sem, index, result.PassID, src, logger)
		}(src)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		result.Runs = append(result.Runs, out.run)
		result.NewArticles = append(result.NewArticles, out.articles...)
	}
	result.FinishedAt = o.now().UTC()
	o.observer.ObservePass(result.FinishedAt.Sub(result.StartedAt))

	if o.publisher != nil && len(result.NewArticles) > 0 {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := o.publisher.Publish(pubCtx, result.NewArticles); err != nil {
			result.DeliveryError = err
			logger.Error("article delivery failed", "articles", len(result.NewArticles), "error", err)
		}
		cancel()
	}

	totals := result.Totals()
	logger.Info("collection pass finished",
		"sources", totals.Sources,
		"succeeded", totals.Succeeded,
		"partial", totals.Partial,
		"failed", totals.Failed,
		"found", totals.Found,
		"new", totals.New,
		"duration", result.FinishedAt.Sub(result.StartedAt).String(),
	)
	return result, nil
}

// RunOnceAsync starts a pass in the background. The channel yields exactly one result;
// when the pass could not start its Err field is set.
func (o *Orchestrator) RunOnceAsync(ctx context.Context, filter SourceFilter) <-chan PassResult {
	ch := make(chan PassResult, 1)
	go func() {
		defer close(ch)
		result, err := o.RunOnce(ctx, filter)
		if err != nil {
			if !errors.Is(err, ErrPassInProgress) {
				o.logger.Error("background collection pass failed", "error", err)
			}
			ch <- PassResult{Err: err}
			return
		}
		ch <- *result
	}()
	return ch
}

type sourceOutcome struct {
	run      models.CollectionRun
	articles []models.Article
}

func (o *Orchestrator) runSource(ctx context.Context, sem *semaphore.Weighted, index *DuplicateIndex, passID string, src models.Source, logger *slog.Logger) sourceOutcome {
	logger = logger.With("source", src.Name)
	run := models.CollectionRun{
		PassID:     passID,
		SourceID:   src.ID,
		SourceName: src.Name,
		Status:     models.RunStatusSuccess,
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		run.StartedAt = o.now().UTC()
		run.Fail("cancelled before start")
		o.finish(ctx, &run, logger)
		return sourceOutcome{run: run}
	}
	defer sem.Release(1)

	run.StartedAt = o.now().UTC()
	srcCtx := ctx
	if o.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		srcCtx, cancel = context.WithTimeout(ctx, o.cfg.SourceTimeout)
		defer cancel()
	}

	articles := o.collect(srcCtx, index, src, &run, logger)
	o.finish(ctx, &run, logger)
	return sourceOutcome{run: run, articles: articles}
}

// collect runs the fetch, classify, filter, enrich and persist stages for one source
// and fills in run's counters and status.
func (o *Orchestrator) collect(ctx context.Context, index *DuplicateIndex, src models.Source, run *models.CollectionRun, logger *slog.Logger) []models.Article {
	collector, err := o.registry.Lookup(src.Kind)
	if err != nil {
		run.Fail(err.Error())
		return nil
	}

	var stream *ItemStream
	err = Retry(ctx, o.cfg.Retry, func(attempt int) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		s, err := collector.Fetch(ctx, src)
		if err != nil {
			logger.Warn("fetch attempt failed", "attempt", attempt, "error", err)
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		logger.Error("source collection failed", "error", err)
		run.Fail(err.Error())
		return nil
	}

	var (
		articles  []models.Article
		cancelErr error
		now       = o.now()
	)
	for item := range stream.All() {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}
		run.ArticlesFound++

		if !validItem(item) {
			run.Filtered++
			o.observer.ObserveItem(src.Name, OutcomeFiltered)
			logger.Debug("item filtered", "url", item.URL, "reason", string(FilterInvalid))
			continue
		}

		switch index.Classify(item) {
		case ClassDuplicateURL:
			run.SkippedURL++
			o.observer.ObserveItem(src.Name, OutcomeDuplicateURL)
			continue
		case ClassDuplicateTitle:
			run.SkippedTitle++
			o.observer.ObserveItem(src.Name, OutcomeDuplicateTitle)
			continue
		}

		// Duplicates are counted as such even when they would also fail a filter.
		if reason := o.cfg.Filters.Check(item, src, now); reason != FilterPass {
			index.Release(item)
			run.Filtered++
			o.observer.ObserveItem(src.Name, OutcomeFiltered)
			logger.Debug("item filtered", "url", item.URL, "reason", string(reason))
			continue
		}

		run.ArticlesProcessed++
		article, ok := o.enrich(ctx, src, item, run, logger)
		if !ok {
			index.Release(item)
			run.ItemErrors++
			o.observer.ObserveItem(src.Name, OutcomeError)
			continue
		}

		if err := ctx.Err(); err != nil {
			index.Release(item)
			run.ItemErrors++
			o.observer.ObserveItem(src.Name, OutcomeError)
			cancelErr = err
			break
		}

		if err := o.store.InsertArticle(ctx, &article); err != nil {
			index.Release(item)
			if errors.Is(err, ErrConflict) {
				run.LateDuplicates++
				o.observer.ObserveItem(src.Name, OutcomeLateDuplicate)
				continue
			}
			run.ItemErrors++
			o.observer.ObserveItem(src.Name, OutcomeError)
			logger.Error("failed to store article", "url", article.URL, "error", err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				cancelErr = ctxErr
				break
			}
			continue
		}

		run.ArticlesNew++
		o.observer.ObserveItem(src.Name, OutcomeNew)
		articles = append(articles, article)
	}

	switch {
	case cancelErr != nil && run.ArticlesNew == 0:
		run.Fail(fmt.Sprintf("cancelled: %v", cancelErr))
	case cancelErr != nil:
		run.Status = models.RunStatusPartial
		msg := fmt.Sprintf("cancelled after %d new articles: %v", run.ArticlesNew, cancelErr)
		run.ErrorMessage = &msg
	case run.ItemErrors > 0 || run.EnrichmentFailures > 0:
		run.Status = models.RunStatusPartial
		msg := fmt.Sprintf("%d item errors, %d enrichment failures", run.ItemErrors, run.EnrichmentFailures)
		run.ErrorMessage = &msg
	}
	return articles
}

// enrich builds the article for a new item. It reports false when the item must be
// dropped under the skip policy.
func (o *Orchestrator) enrich(ctx context.Context, src models.Source, item models.RawItem, run *models.CollectionRun, logger *slog.Logger) (models.Article, bool) {
	article := models.Article{
		URL:             item.URL,
		Title:           item.Title,
		NormalizedTitle: NormalizeTitle(item.Title),
		Content:         item.Content,
		Author:          item.Author,
		Source:          src.Name,
		Language:        src.Language,
		PublishedAt:     item.PublishedAt,
		CollectedAt:     o.now().UTC(),
		Metadata:        item.Metadata,
	}

	if o.enricher == nil {
		article.Summary = fallbackSummary(item)
		article.Tags = models.MergeTags(src.Tags)
		return article, true
	}

	result, err := o.enricher.Enrich(ctx, enrichment.EnrichRequest{Item: item, Source: src})
	if err != nil {
		run.EnrichmentFailures++
		o.observer.ObserveEnrichment(false)
		logger.Warn("enrichment failed", "error", &EnrichmentError{URL: item.URL, Cause: err})
		if o.cfg.EnrichFailure == EnrichSkip {
			return article, false
		}
		article.Summary = fallbackSummary(item)
		article.Tags = models.MergeTags(src.Tags)
		return article, true
	}

	o.observer.ObserveEnrichment(true)
	article.Summary = strings.TrimSpace(result.Summary)
	if article.Summary == "" {
		article.Summary = fallbackSummary(item)
	}
	article.Tags = models.MergeTags(src.Tags, result.Tags)
	return article, true
}

// finish records the run and source counters with a detached context so they are
// written even after the pass is cancelled.
func (o *Orchestrator) finish(ctx context.Context, run *models.CollectionRun, logger *slog.Logger) {
	finished := o.now().UTC()
	run.DurationSeconds = finished.Sub(run.StartedAt).Seconds()

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := o.store.RecordCollectionRun(recordCtx, run); err != nil {
		logger.Error("failed to record collection run", "error", err)
	}
	if run.SourceID != 0 {
		if err := o.sources.UpdateCollectionStats(recordCtx, run.SourceID, finished, run.Status == models.RunStatusFailed); err != nil {
			logger.Error("failed to update source stats", "error", err)
		}
	}
	o.observer.ObserveRun(*run)

	attrs := []any{
		"status", string(run.Status),
		"found", run.ArticlesFound,
		"new", run.ArticlesNew,
		"skipped_url", run.SkippedURL,
		"skipped_title", run.SkippedTitle,
		"errors", run.Errors(),
		"duration_seconds", run.DurationSeconds,
	}
	if run.ErrorMessage != nil {
		attrs = append(attrs, "error", *run.ErrorMessage)
	}
	if run.Status == models.RunStatusFailed {
		logger.Warn("source run finished", attrs...)
		return
	}
	logger.Info("source run finished", attrs...)
}
