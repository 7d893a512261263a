package models

import "time"

// RunStatus is the terminal state of one source within a pass.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// CollectionRun is the telemetry record of one source's outcome within a pass.
// Every attempted source produces exactly one, whatever the outcome.
type CollectionRun struct {
	ID                 int64     `json:"id,omitempty"`
	PassID             string    `json:"pass_id"`
	SourceID           int64     `json:"source_id"`
	SourceName         string    `json:"source_name"`
	StartedAt          time.Time `json:"started_at"`
	Status             RunStatus `json:"status"`
	ArticlesFound      int       `json:"articles_found"`
	ArticlesProcessed  int       `json:"articles_processed"`
	ArticlesNew        int       `json:"articles_new"`
	SkippedURL         int       `json:"skipped_url"`
	SkippedTitle       int       `json:"skipped_title"`
	Filtered           int       `json:"filtered"`
	LateDuplicates     int       `json:"late_duplicates"`
	ItemErrors         int       `json:"item_errors"`
	EnrichmentFailures int       `json:"enrichment_failures"`
	ErrorMessage       *string   `json:"error_message,omitempty"`
	DurationSeconds    float64   `json:"duration_seconds"`
}

// Skipped is the number of items dropped by the duplicate index.
func (r *CollectionRun) Skipped() int {
	return r.SkippedURL + r.SkippedTitle
}

// Errors counts found items that were neither new nor snapshot duplicates.
func (r *CollectionRun) Errors() int {
	return r.Filtered + r.LateDuplicates + r.ItemErrors
}

// Balanced reports whether the run's counters account for every found item.
func (r *CollectionRun) Balanced() bool {
	if r.ArticlesFound != r.ArticlesNew+r.Skipped()+r.Errors() {
		return false
	}
	return r.ArticlesProcessed == r.ArticlesNew+r.LateDuplicates+r.ItemErrors
}

// Fail marks the run failed with the given message.
func (r *CollectionRun) Fail(msg string) {
	r.Status = RunStatusFailed
	r.ErrorMessage = &msg
}

// RunQuery selects collection runs by start time and source. Zero fields match all.
type RunQuery struct {
	Since    time.Time
	Until    time.Time
	SourceID int64
}

// Matches reports whether run falls within the query.
func (q RunQuery) Matches(run CollectionRun) bool {
	if !q.Since.IsZero() && run.StartedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !run.StartedAt.Before(q.Until) {
		return false
	}
	return q.SourceID == 0 || run.SourceID == q.SourceID
}
