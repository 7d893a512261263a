// Package ledger aggregates collection runs into per-source statistics.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
)

// RunReader lists recorded collection runs.
type RunReader interface {
	ListRuns(ctx context.Context, q models.RunQuery) ([]models.CollectionRun, error)
}

// Query selects the runs to summarize. It is an alias so callers can build it without
// importing models.
type Query = models.RunQuery

// Row is the aggregate for one source, or for all sources in Report.Total.
type Row struct {
	SourceID           int64     `json:"source_id,omitempty"`
	SourceName         string    `json:"source_name,omitempty"`
	Runs               int       `json:"runs"`
	Succeeded          int       `json:"succeeded"`
	Partial            int       `json:"partial"`
	Failed             int       `json:"failed"`
	Found              int       `json:"found"`
	SkippedURL         int       `json:"skipped_url"`
	SkippedTitle       int       `json:"skipped_title"`
	Processed          int       `json:"processed"`
	New                int       `json:"new"`
	LateDuplicates     int       `json:"late_duplicates"`
	Errors             int       `json:"errors"`
	EnrichmentFailures int       `json:"enrichment_failures"`
	AvgDurationSeconds float64   `json:"avg_duration_seconds"`
	SuccessRate        float64   `json:"success_rate"`
	LastRunAt          time.Time `json:"last_run_at,omitzero"`

	totalDuration float64
}

// Report is the ledger summary for a query.
type Report struct {
	Since   time.Time `json:"since,omitzero"`
	Until   time.Time `json:"until,omitzero"`
	Sources []Row     `json:"sources"`
	Total   Row       `json:"total"`
}

// Ledger summarizes collection history.
type Ledger struct {
	reader RunReader
	now    func() time.Time
}

func New(reader RunReader) *Ledger {
	return &Ledger{reader: reader, now: time.Now}
}

// Summarize aggregates the runs matching q per source, ordered by source name.
func (l *Ledger) Summarize(ctx context.Context, q Query) (Report, error) {
	runs, err := l.reader.ListRuns(ctx, q)
	if err != nil {
		return Report{}, fmt.Errorf("list collection runs: %w", err)
	}

	bySource := make(map[string]*Row)
	report := Report{Since: q.Since, Until: q.Until}
	for i := range runs {
		run := &runs[i]
		key := run.SourceName
		row, ok := bySource[key]
		if !ok {
			row = &Row{SourceID: run.SourceID, SourceName: run.SourceName}
			bySource[key] = row
		}
		row.add(run)
		report.Total.add(run)
	}

	report.Sources = make([]Row, 0, len(bySource))
	for _, row := range bySource {
		row.finish()
		report.Sources = append(report.Sources, *row)
	}
	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].SourceName < report.Sources[j].SourceName
	})
	report.Total.finish()
	return report, nil
}

// SuccessRate returns the percentage of runs in the last days that finished with
// status success, or 0 when there were none.
func (l *Ledger) SuccessRate(ctx context.Context, days int) (float64, error) {
	since := l.now().Add(-time.Duration(days) * 24 * time.Hour)
	report, err := l.Summarize(ctx, Query{Since: since})
	if err != nil {
		return 0, err
	}
	return report.Total.SuccessRate, nil
}

func (r *Row) add(run *models.CollectionRun) {
	r.Runs++
	switch run.Status {
	case models.RunStatusSuccess:
		r.Succeeded++
	case models.RunStatusPartial:
		r.Partial++
	case models.RunStatusFailed:
		r.Failed++
	}
	r.Found += run.ArticlesFound
	r.SkippedURL += run.SkippedURL
	r.SkippedTitle += run.SkippedTitle
	r.Processed += run.ArticlesProcessed
	r.New += run.ArticlesNew
	r.LateDuplicates += run.LateDuplicates
	r.Errors += run.Errors()
	r.EnrichmentFailures += run.EnrichmentFailures
	r.totalDuration += run.DurationSeconds
	if run.StartedAt.After(r.LastRunAt) {
		r.LastRunAt = run.StartedAt
	}
}

func (r *Row) finish() {
	if r.Runs == 0 {
		return
	}
	r.AvgDurationSeconds = r.totalDuration / float64(r.Runs)
	r.SuccessRate = float64(r.Succeeded) / float64(r.Runs) * 100
}
