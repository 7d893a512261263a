package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/STRATINT/newsdesk/internal/ingestion"
	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresStore implements ingestion.ArticleStore, ingestion.SourceRepository and the
// ledger's run reader on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return HealthCheck(ctx, s.db)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// InsertArticle stores a new article. The unique index on url makes concurrent inserts
// of the same url race safely: exactly one wins, the rest get a ConflictError.
func (s *PostgresStore) InsertArticle(ctx context.Context, article *models.Article) error {
	if article.NormalizedTitle == "" {
		article.NormalizedTitle = ingestion.NormalizeTitle(article.Title)
	}
	if article.CollectedAt.IsZero() {
		article.CollectedAt = time.Now().UTC()
	}

	metadata, err := json.Marshal(article.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal article metadata: %w", err)
	}
	if article.Metadata == nil {
		metadata = []byte("{}")
	}
	tags := article.Tags
	if tags == nil {
		tags = []string{}
	}

	query := `
		INSERT INTO articles (
			url, title, normalized_title, content, summary, author, source, language,
			published_date, collected_at, collected_date, tags, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		article.URL,
		article.Title,
		article.NormalizedTitle,
		article.Content,
		nullableSummary(article.Summary),
		article.Author,
		article.Source,
		article.Language,
		article.PublishedAt,
		article.CollectedAt,
		article.CollectedAt.UTC().Format("2006-01-02"),
		pq.Array(tags),
		metadata,
	).Scan(&article.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &ingestion.ConflictError{URL: article.URL}
		}
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// nullableSummary stores an empty summary as NULL so unenriched rows are queryable.
func nullableSummary(summary string) sql.NullString {
	return sql.NullString{String: summary, Valid: strings.TrimSpace(summary) != ""}
}

// RecentURLs returns the urls of articles collected at or after since.
func (s *PostgresStore) RecentURLs(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	return s.recentSet(ctx, "SELECT url FROM articles WHERE collected_at >= $1", since)
}

// RecentNormalizedTitles returns normalized titles of articles collected at or after since.
func (s *PostgresStore) RecentNormalizedTitles(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	return s.recentSet(ctx, "SELECT DISTINCT normalized_title FROM articles WHERE collected_at >= $1", since)
}

func (s *PostgresStore) recentSet(ctx context.Context, query string, since time.Time) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent articles: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan recent article: %w", err)
		}
		set[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent articles: %w", err)
	}
	return set, nil
}

// CleanupOlderThan deletes articles collected strictly before now minus days.
func (s *PostgresStore) CleanupOlderThan(ctx context.Context, days int, now time.Time) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("retention days must be non-negative, got %d", days)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM articles WHERE collected_at < $1", ingestion.RetentionCutoff(days, now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old articles: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted articles: %w", err)
	}
	return deleted, nil
}
