package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Classification is the duplicate verdict for one raw item.
type Classification string

const (
	ClassNew            Classification = "new"
	ClassDuplicateURL   Classification = "duplicate-url"
	ClassDuplicateTitle Classification = "duplicate-title"
)

// DedupWindows are the lookback windows for URL and title duplicates.
type DedupWindows struct {
	URL   time.Duration
	Title time.Duration
}

// DefaultDedupWindows returns 24h for URLs and 48h for titles.
func DefaultDedupWindows() DedupWindows {
	return DedupWindows{URL: 24 * time.Hour, Title: 48 * time.Hour}
}

// NormalizeTitle trims surrounding whitespace and applies Unicode NFC. Case is kept.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// DuplicateIndex is a snapshot of recently stored URLs and normalized titles. It is
// never mutated after construction and may be shared across goroutines.
type DuplicateIndex struct {
	urls   map[string]struct{}
	titles map[string]struct{}
	guard  *PassTitleGuard
}

// DuplicateReader is the part of ArticleStore the index is built from.
type DuplicateReader interface {
	RecentURLs(ctx context.Context, since time.Time) (map[string]struct{}, error)
	RecentNormalizedTitles(ctx context.Context, since time.Time) (map[string]struct{}, error)
}

// BuildDuplicateIndex loads the URLs collected within windows.URL of now and the
// titles collected within windows.Title of now.
func BuildDuplicateIndex(ctx context.Context, store DuplicateReader, windows DedupWindows, now time.Time) (*DuplicateIndex, error) {
	urls, err := store.RecentURLs(ctx, now.Add(-windows.URL))
	if err != nil {
		return nil, fmt.Errorf("load recent urls: %w", err)
	}
	titles, err := store.RecentNormalizedTitles(ctx, now.Add(-windows.Title))
	if err != nil {
		return nil, fmt.Errorf("load recent titles: %w", err)
	}
	if urls == nil {
		urls = map[string]struct{}{}
	}
	if titles == nil {
		titles = map[string]struct{}{}
	}
	return &DuplicateIndex{urls: urls, titles: titles}, nil
}

// WithPassGuard returns a copy of the index that also consults guard for titles first
// seen earlier in the same pass.
func (idx *DuplicateIndex) WithPassGuard(guard *PassTitleGuard) *DuplicateIndex {
	return &DuplicateIndex{urls: idx.urls, titles: idx.titles, guard: guard}
}

// Classify returns exactly one verdict for item. URL matches take precedence.
func (idx *DuplicateIndex) Classify(item models.RawItem) Classification {
	if _, ok := idx.urls[item.URL]; ok {
		return ClassDuplicateURL
	}
	title := NormalizeTitle(item.Title)
	if _, ok := idx.titles[title]; ok {
		return ClassDuplicateTitle
	}
	if idx.guard != nil && !idx.guard.Claim(title) {
		return ClassDuplicateTitle
	}
	return ClassNew
}

// Release gives back the pass claim on item's title after the item turned out not to
// be stored, so a later item with the same title may still be classified new. It is a
// no-op without a pass guard.
func (idx *DuplicateIndex) Release(item models.RawItem) {
	if idx.guard != nil {
		idx.guard.Release(NormalizeTitle(item.Title))
	}
}

// Size returns the number of URLs and titles in the snapshot.
func (idx *DuplicateIndex) Size() (urls, titles int) {
	return len(idx.urls), len(idx.titles)
}

// PassTitleGuard records normalized titles claimed during one pass.
type PassTitleGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewPassTitleGuard() *PassTitleGuard {
	return &PassTitleGuard{seen: make(map[string]struct{})}
}

// Claim reports whether title was unclaimed, claiming it if so.
func (g *PassTitleGuard) Claim(title string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[title]; ok {
		return false
	}
	g.seen[title] = struct{}{}
	return true
}

// Release forgets a claimed title.
func (g *PassTitleGuard) Release(title string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, title)
}
