package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork classifies collection failures caused by transport or upstream status.
	ErrNetwork = errors.New("network error")
	// ErrParse classifies collection failures caused by unreadable upstream payloads.
	ErrParse = errors.New("parse error")
	// ErrConflict is returned by ArticleStore.InsertArticle when the url already exists.
	ErrConflict = errors.New("article already exists")
	// ErrPassInProgress is returned when RunOnce is called while another pass runs.
	ErrPassInProgress = errors.New("collection pass already in progress")
	// ErrUnsupportedKind is returned for sources whose kind has no registered collector.
	ErrUnsupportedKind = errors.New("unsupported source kind")
)

// CollectionError is the failure outcome of fetching one source.
type CollectionError struct {
	Source string
	Kind   error // ErrNetwork or ErrParse
	Cause  error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v: %v", e.Source, e.Kind, e.Cause)
}

// Unwrap exposes both the classification sentinel and the underlying cause.
func (e *CollectionError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

func networkError(source string, cause error) *CollectionError {
	return &CollectionError{Source: source, Kind: ErrNetwork, Cause: cause}
}

func parseError(source string, cause error) *CollectionError {
	return &CollectionError{Source: source, Kind: ErrParse, Cause: cause}
}

// ConflictError reports an insert that lost the race on the url unique constraint.
type ConflictError struct {
	URL string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("article %s already exists", e.URL)
}

// Is makes errors.Is(err, ErrConflict) hold for every ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// EnrichmentError wraps a failure from the external enricher for one item.
type EnrichmentError struct {
	URL   string
	Cause error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich %s: %v", e.URL, e.Cause)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Cause
}
