package permits

import (
	"context"
	"net/http"
	"time"
)

// SearchEngine executes one permit search over a date range. Implementations
// share a single contract so the caller can swap the plain-HTTP path for the
// browser path when the source starts bouncing requests to its login page.
type SearchEngine interface {
	Name() string
	Search(ctx context.Context, query SearchQuery) (SearchResult, error)
}

// FetchRequest captures everything needed to fetch one secondary page or PDF.
type FetchRequest struct {
	URL     string
	Referer string
	Headers http.Header
}

// FetchResponse is the result returned by a PageFetcher.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PageFetcher fetches a single URL and returns the body plus metadata.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PermitStore persists permit rows and enrichment results. Each call commits
// independently so one permit's failure cannot roll back another's.
type PermitStore interface {
	// UpsertPermits inserts new rows keyed by status_no and refreshes
	// re-observed ones. Returns the number of rows written.
	UpsertPermits(ctx context.Context, rows []PermitRecord) (int, error)

	// SelectNeedingEnrichment returns permits with a detail URL that are
	// unprocessed, or in a retryable status last attempted before retryBefore.
	SelectNeedingEnrichment(ctx context.Context, limit int, retryBefore time.Time) ([]PermitRecord, error)

	// UpdateEnrichment applies result with set-if-present semantics: nil
	// fields never null out stored values, while status, confidence and the
	// enrichment timestamp are always refreshed.
	UpdateEnrichment(ctx context.Context, statusNo string, result EnrichmentResult) error

	Close()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
