package ingestion

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/STRATINT/newsdesk/internal/models"
)

// Collector fetches raw items from one kind of upstream source.
type Collector interface {
	Kind() models.SourceKind
	// Fetch performs the upstream request and parse. It is the unit the orchestrator retries.
	Fetch(ctx context.Context, source models.Source) (*ItemStream, error)
}

// ItemStream is a lazy, single-use sequence of raw items. Upstream entries are converted
// as they are consumed; a second call to All yields nothing.
type ItemStream struct {
	seq      iter.Seq[models.RawItem]
	consumed atomic.Bool
}

// NewItemStream wraps seq as a single-use stream.
func NewItemStream(seq iter.Seq[models.RawItem]) *ItemStream {
	return &ItemStream{seq: seq}
}

// StreamOf returns a stream over a fixed slice of items.
func StreamOf(items ...models.RawItem) *ItemStream {
	return NewItemStream(func(yield func(models.RawItem) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	})
}

// All returns the item sequence on the first call and an empty sequence afterwards.
func (s *ItemStream) All() iter.Seq[models.RawItem] {
	if s == nil || s.seq == nil || !s.consumed.CompareAndSwap(false, true) {
		return func(func(models.RawItem) bool) {}
	}
	return s.seq
}

// Registry maps a source kind to its collector.
type Registry struct {
	collectors map[models.SourceKind]Collector
}

// NewRegistry builds a registry from the given collectors. Later entries replace
// earlier ones of the same kind.
func NewRegistry(collectors ...Collector) *Registry {
	r := &Registry{collectors: make(map[models.SourceKind]Collector, len(collectors))}
	for _, c := range collectors {
		r.Register(c)
	}
	return r
}

// DefaultRegistry wires the rss, website and social collectors over a shared fetcher.
func DefaultRegistry(fetcher *HTTPFetcher) *Registry {
	return NewRegistry(
		NewRSSCollector(fetcher),
		NewWebsiteCollector(fetcher),
		NewSocialCollector(fetcher),
	)
}

// Register adds or replaces the collector for c.Kind().
func (r *Registry) Register(c Collector) {
	r.collectors[c.Kind()] = c
}

// Lookup returns the collector for kind.
func (r *Registry) Lookup(kind models.SourceKind) (Collector, error) {
	c, ok := r.collectors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return c, nil
}
