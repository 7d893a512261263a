package enrichment

import (
	"context"

	"github.com/STRATINT/newsdesk/internal/models"
)

// EnrichRequest is one new item handed to an enricher, with the source it came from.
type EnrichRequest struct {
	Item   models.RawItem
	Source models.Source
}

// Enrichment is the derived data attached to an article before it is stored.
type Enrichment struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// Enricher summarizes and tags new items.
type Enricher interface {
	Enrich(ctx context.Context, req EnrichRequest) (Enrichment, error)
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, req EnrichRequest) (Enrichment, error)

func (f EnricherFunc) Enrich(ctx context.Context, req EnrichRequest) (Enrichment, error) {
	return f(ctx, req)
}
