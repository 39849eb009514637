// Package permits defines core types shared across the ingestion pipeline.
package permits

import "time"

// ParseStatus tracks how far enrichment got for one permit.
type ParseStatus string

// Parse status values persisted with each permit.
const (
	StatusUnprocessed   ParseStatus = "unprocessed"
	StatusOK            ParseStatus = "ok"
	StatusPartial       ParseStatus = "partial"
	StatusNoPDF         ParseStatus = "no_pdf"
	StatusParseError    ParseStatus = "parse_error"
	StatusDownloadError ParseStatus = "download_error"
)

// RetryableStatuses are enrichment outcomes worth re-attempting once the
// cooldown has passed; source layout drift means a later run may do better.
var RetryableStatuses = []ParseStatus{
	StatusPartial,
	StatusParseError,
	StatusDownloadError,
	StatusNoPDF,
}

// PermitRecord is one drilling-permit filing as observed on the search
// results page, keyed by the regulator's status number.
type PermitRecord struct {
	StatusNo        string `json:"status_no"`
	StatusDate      string `json:"status_date"`
	APINo           string `json:"api_no"`
	OperatorName    string `json:"operator_name"`
	OperatorNo      string `json:"operator_no"`
	LeaseName       string `json:"lease_name"`
	WellNo          string `json:"well_no"`
	District        string `json:"district"`
	County          string `json:"county"`
	WellboreProfile string `json:"wellbore_profile"`
	FilingPurpose   string `json:"filing_purpose"`
	// Amend is nil when the source cell holds neither "Yes" nor "No".
	Amend        *bool  `json:"amend,omitempty"`
	TotalDepth   string `json:"total_depth"`
	CurrentQueue string `json:"current_queue"`
	DetailURL    string `json:"detail_url"`

	Enrichment EnrichmentResult `json:"enrichment"`
}

// EnrichmentResult holds the fields recovered from a permit's detail page and
// regulatory PDF. Nil pointers mean "not recovered"; persistence never
// overwrites a stored value with nil.
type EnrichmentResult struct {
	HorizontalWellbore *string  `json:"horizontal_wellbore,omitempty"`
	FieldName          *string  `json:"field_name,omitempty"`
	Acres              *float64 `json:"acres,omitempty"`
	Section            *string  `json:"section,omitempty"`
	Block              *string  `json:"block,omitempty"`
	Survey             *string  `json:"survey,omitempty"`
	AbstractNo         *string  `json:"abstract_no,omitempty"`
	ReservoirWellCount *int     `json:"reservoir_well_count,omitempty"`
	PDFURL             *string  `json:"pdf_url,omitempty"`

	ParseStatus     ParseStatus `json:"parse_status"`
	ParseConfidence float64     `json:"parse_confidence"`
	TextSnippet     string      `json:"text_snippet,omitempty"`
	LastEnrichedAt  *time.Time  `json:"last_enriched_at,omitempty"`
}

// ScoredFieldCount reports how many of the four confidence-scored fields are
// present. parse_confidence > 0 implies this is at least 1.
func (r EnrichmentResult) ScoredFieldCount() int {
	n := 0
	if r.HorizontalWellbore != nil {
		n++
	}
	if r.FieldName != nil {
		n++
	}
	if r.Acres != nil {
		n++
	}
	if r.ReservoirWellCount != nil {
		n++
	}
	return n
}

// SearchQuery carries the caller-validated date range for one search call.
// Dates are fixed-format (MM/DD/YYYY) strings; validation is the caller's job.
type SearchQuery struct {
	BeginDate string
	EndDate   string
	MaxPages  int
}

// SearchResult is returned by either fetch engine.
type SearchResult struct {
	Items     []PermitRecord `json:"items"`
	Pages     int            `json:"pages"`
	Count     int            `json:"count"`
	Method    string         `json:"method"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// EnrichmentSummary is the structured outcome of one enrichment run. No
// ordinary single-permit failure escapes as an error; it lands in Errors,
// capped at a small sample.
type EnrichmentSummary struct {
	RunID          string   `json:"run_id"`
	Processed      int      `json:"processed"`
	Successful     int      `json:"successful"`
	Partial        int      `json:"partial"`
	Failed         int      `json:"failed"`
	NoPDF          int      `json:"no_pdf"`
	DownloadErrors int      `json:"download_errors"`
	ParseErrors    int      `json:"parse_errors"`
	Errors         []string `json:"errors,omitempty"`
}
