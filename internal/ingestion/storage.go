package ingestion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
)

// ArticleStore persists articles and collection runs.
type ArticleStore interface {
	// InsertArticle stores a new article. It never overwrites: an existing url yields
	// an error satisfying errors.Is(err, ErrConflict).
	InsertArticle(ctx context.Context, article *models.Article) error

	// RecentURLs returns the urls of articles collected at or after since.
	RecentURLs(ctx context.Context, since time.Time) (map[string]struct{}, error)

	// RecentNormalizedTitles returns normalized titles of articles collected at or after since.
	RecentNormalizedTitles(ctx context.Context, since time.Time) (map[string]struct{}, error)

	// RecordCollectionRun appends a run to the collection log.
	RecordCollectionRun(ctx context.Context, run *models.CollectionRun) error

	// CleanupOlderThan deletes articles collected strictly before now minus days.
	CleanupOlderThan(ctx context.Context, days int, now time.Time) (int64, error)
}

// SourceRepository stores source definitions and their collection counters.
type SourceRepository interface {
	ListEnabled(ctx context.Context) ([]models.Source, error)
	UpsertSource(ctx context.Context, source *models.Source) error
	UpdateCollectionStats(ctx context.Context, sourceID int64, collectedAt time.Time, failed bool) error
}

// RetentionCutoff is the oldest collected_at that survives a cleanup of the given age.
func RetentionCutoff(days int, now time.Time) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// MemoryStore is an in-memory ArticleStore and SourceRepository for tests and local
// runs without PostgreSQL.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]models.Article
	sources  map[int64]models.Source
	runs     []models.CollectionRun
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[string]models.Article),
		sources:  make(map[int64]models.Source),
		now:      time.Now,
	}
}

func (s *MemoryStore) InsertArticle(ctx context.Context, article *models.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if article == nil || article.URL == "" {
		return fmt.Errorf("article url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.articles[article.URL]; exists {
		return &ConflictError{URL: article.URL}
	}

	s.nextID++
	article.ID = s.nextID
	if article.CollectedAt.IsZero() {
		article.CollectedAt = s.now().UTC()
	}
	if article.NormalizedTitle == "" {
		article.NormalizedTitle = NormalizeTitle(article.Title)
	}
	s.articles[article.URL] = *article
	return nil
}

func (s *MemoryStore) RecentURLs(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	return s.recent(ctx, since, func(a models.Article) string { return a.URL })
}

func (s *MemoryStore) RecentNormalizedTitles(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	return s.recent(ctx, since, func(a models.Article) string { return a.NormalizedTitle })
}

func (s *MemoryStore) recent(ctx context.Context, since time.Time, key func(models.Article) string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{})
	for _, a := range s.articles {
		if a.CollectedAt.Before(since) {
			continue
		}
		if k := key(a); k != "" {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordCollectionRun(ctx context.Context, run *models.CollectionRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = int64(len(s.runs) + 1)
	s.runs = append(s.runs, *run)
	return nil
}

func (s *MemoryStore) CleanupOlderThan(ctx context.Context, days int, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, fmt.Errorf("retention days must be non-negative, got %d", days)
	}
	cutoff := RetentionCutoff(days, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for url, a := range s.articles {
		if a.CollectedAt.Before(cutoff) {
			delete(s.articles, url)
			deleted++
		}
	}
	return deleted, nil
}

// ListRuns returns recorded runs matching q, newest first.
func (s *MemoryStore) ListRuns(ctx context.Context, q models.RunQuery) ([]models.CollectionRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CollectionRun
	for _, run := range s.runs {
		if q.Matches(run) {
			out = append(out, run)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// Articles returns a copy of the stored articles ordered by url.
func (s *MemoryStore) Articles() []models.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func (s *MemoryStore) ListEnabled(ctx context.Context) ([]models.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Source
	for _, src := range s.sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertSource inserts source or updates the existing source with the same name.
// Collection counters of an existing source are preserved.
func (s *MemoryStore) UpsertSource(ctx context.Context, source *models.Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := source.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.sources {
		if strings.EqualFold(existing.Name, source.Name) {
			source.ID = id
			source.LastCollectedAt = existing.LastCollectedAt
			source.CollectionCount = existing.CollectionCount
			source.ErrorCount = existing.ErrorCount
			s.sources[id] = *source
			return nil
		}
	}

	source.ID = int64(len(s.sources) + 1)
	s.sources[source.ID] = *source
	return nil
}

func (s *MemoryStore) UpdateCollectionStats(ctx context.Context, sourceID int64, collectedAt time.Time, failed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %d not found", sourceID)
	}
	src.MarkCollected(collectedAt, failed)
	s.sources[sourceID] = src
	return nil
}

// Source returns the stored source with id.
func (s *MemoryStore) Source(id int64) (models.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	return src, ok
}

// Ping satisfies the health check used by the HTTP API.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
