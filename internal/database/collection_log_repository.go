package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/STRATINT/newsdesk/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var runColumns = []string{
	"id", "pass_id", "source_id", "source_name", "started_at", "status",
	"articles_found", "articles_processed", "articles_new", "skipped_url", "skipped_title",
	"filtered", "late_duplicates", "item_errors", "enrichment_failures",
	"error_message", "duration_seconds",
}

// RecordCollectionRun appends run to collection_logs and sets its id.
func (s *PostgresStore) RecordCollectionRun(ctx context.Context, run *models.CollectionRun) error {
	var sourceID any
	if run.SourceID != 0 {
		sourceID = run.SourceID
	}

	query, args, err := psql.Insert("collection_logs").
		Columns(
			"pass_id", "source_id", "source_name", "started_at", "collection_date", "status",
			"articles_found", "articles_processed", "articles_new", "skipped_url", "skipped_title",
			"filtered", "late_duplicates", "item_errors", "enrichment_failures",
			"error_message", "duration_seconds",
		).
		Values(
			run.PassID, sourceID, run.SourceName, run.StartedAt, run.StartedAt.UTC().Format("2006-01-02"), string(run.Status),
			run.ArticlesFound, run.ArticlesProcessed, run.ArticlesNew, run.SkippedURL, run.SkippedTitle,
			run.Filtered, run.LateDuplicates, run.ItemErrors, run.EnrichmentFailures,
			run.ErrorMessage, run.DurationSeconds,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build collection log insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&run.ID); err != nil {
		return fmt.Errorf("failed to record collection run: %w", err)
	}
	return nil
}

func runsQuery(q models.RunQuery) (string, []any, error) {
	b := psql.Select(runColumns...).From("collection_logs").OrderBy("started_at DESC", "id DESC")
	if !q.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"started_at": q.Since})
	}
	if !q.Until.IsZero() {
		b = b.Where(sq.Lt{"started_at": q.Until})
	}
	if q.SourceID != 0 {
		b = b.Where(sq.Eq{"source_id": q.SourceID})
	}
	return b.ToSql()
}

// ListRuns returns the collection runs matching q, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, q models.RunQuery) ([]models.CollectionRun, error) {
	query, args, err := runsQuery(q)
	if err != nil {
		return nil, fmt.Errorf("failed to build collection log query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection logs: %w", err)
	}
	defer rows.Close()

	var runs []models.CollectionRun
	for rows.Next() {
		var (
			run      models.CollectionRun
			sourceID sql.NullInt64
			status   string
			errMsg   sql.NullString
		)
		err := rows.Scan(
			&run.ID, &run.PassID, &sourceID, &run.SourceName, &run.StartedAt, &status,
			&run.ArticlesFound, &run.ArticlesProcessed, &run.ArticlesNew, &run.SkippedURL, &run.SkippedTitle,
			&run.Filtered, &run.LateDuplicates, &run.ItemErrors, &run.EnrichmentFailures,
			&errMsg, &run.DurationSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection log: %w", err)
		}
		run.SourceID = sourceID.Int64
		run.Status = models.RunStatus(status)
		if errMsg.Valid {
			msg := errMsg.String
			run.ErrorMessage = &msg
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collection logs: %w", err)
	}
	return runs, nil
}
