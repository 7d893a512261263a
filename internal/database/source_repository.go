package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/lib/pq"
)

// ListEnabled returns the sources collected on every pass, ordered by id.
func (s *PostgresStore) ListEnabled(ctx context.Context) ([]models.Source, error) {
	query := `
		SELECT id, name, url, source_type, language, enabled, last_collected,
		       collection_count, error_count, tags, metadata
		FROM sources
		WHERE enabled = TRUE
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var (
			src        models.Source
			kind       string
			lastRun    sql.NullTime
			configJSON []byte
		)
		err := rows.Scan(
			&src.ID,
			&src.Name,
			&src.URL,
			&kind,
			&src.Language,
			&src.Enabled,
			&lastRun,
			&src.CollectionCount,
			&src.ErrorCount,
			pq.Array(&src.Tags),
			&configJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		src.Kind = models.SourceKind(kind)
		if lastRun.Valid {
			t := lastRun.Time
			src.LastCollectedAt = &t
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &src.Config); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config for source %s: %w", src.Name, err)
			}
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

// UpsertSource inserts a source or updates the definition of the source with the same
// name. Collection counters are left untouched on update.
func (s *PostgresStore) UpsertSource(ctx context.Context, source *models.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}

	cfg := source.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal source config: %w", err)
	}
	tags := source.Tags
	if tags == nil {
		tags = []string{}
	}

	query := `
		INSERT INTO sources (name, url, source_type, language, enabled, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			url = EXCLUDED.url,
			source_type = EXCLUDED.source_type,
			language = EXCLUDED.language,
			enabled = EXCLUDED.enabled,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id, collection_count, error_count
	`

	err = s.db.QueryRowContext(ctx, query,
		source.Name,
		source.URL,
		string(source.Kind),
		source.Language,
		source.Enabled,
		pq.Array(tags),
		configJSON,
	).Scan(&source.ID, &source.CollectionCount, &source.ErrorCount)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", source.Name, err)
	}
	return nil
}

// UpdateCollectionStats bumps collection_count, and error_count on failure. A
// successful run resets error_count.
func (s *PostgresStore) UpdateCollectionStats(ctx context.Context, sourceID int64, collectedAt time.Time, failed bool) error {
	query := `
		UPDATE sources SET
			last_collected = $2,
			collection_count = collection_count + 1,
			error_count = CASE WHEN $3 THEN error_count + 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, sourceID, collectedAt, failed)
	if err != nil {
		return fmt.Errorf("failed to update source stats: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source %d not found", sourceID)
	}
	return nil
}
