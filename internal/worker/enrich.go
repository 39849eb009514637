// Package worker implements the enrichment execution loop: it selects
// permits needing (re)enrichment, drives the detail-page and PDF parsers,
// resolves a final parse status and confidence, and persists the outcome.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drillwatch/permit-pipeline/internal/engine"
	"github.com/drillwatch/permit-pipeline/internal/metrics"
	"github.com/drillwatch/permit-pipeline/internal/parse"
	"github.com/drillwatch/permit-pipeline/internal/permits"
)

// PDFTextExtractor turns fetched PDF bytes into text.
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, content []byte) (string, error)
}

// Weights are the empirically tuned confidence constants. Their correctness
// is defined by observed behavior against the real portal, not derivation;
// they are configuration so operators can adjust without a rebuild.
type Weights struct {
	HorizontalWellbore float64
	FieldName          float64
	Acres              float64
	WellCount          float64
	// WellCountPDFBonusCap caps the PDF subconfidence added on top of the
	// well-count weight.
	WellCountPDFBonusCap float64
	// OKThreshold and OKMinFields gate the `ok` status.
	OKThreshold float64
	OKMinFields int
}

// DefaultWeights returns the tuned constants.
func DefaultWeights() Weights {
	return Weights{
		HorizontalWellbore:   0.3,
		FieldName:            0.3,
		Acres:                0.2,
		WellCount:            0.2,
		WellCountPDFBonusCap: 0.2,
		OKThreshold:          0.6,
		OKMinFields:          2,
	}
}

// Config controls Worker behavior.
type Config struct {
	// RetryCooldown bounds how often a retryable permit is re-attempted.
	RetryCooldown time.Duration
	// ErrorSampleCap bounds the per-run error list.
	ErrorSampleCap int
	Weights        Weights
}

func (c Config) withDefaults() Config {
	if c.RetryCooldown <= 0 {
		c.RetryCooldown = 6 * time.Hour
	}
	if c.ErrorSampleCap <= 0 {
		c.ErrorSampleCap = 10
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	return c
}

// Worker enriches permits one at a time. Processing is deliberately
// sequential: it keeps the backoff behavior deterministic and stays inside
// the source's implicit rate tolerance.
type Worker struct {
	store   permits.PermitStore
	fetcher permits.PageFetcher
	retry   *engine.RetryPolicy
	pdfText PDFTextExtractor
	clock   permits.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	store permits.PermitStore,
	fetcher permits.PageFetcher,
	retry *engine.RetryPolicy,
	pdfText PDFTextExtractor,
	clock permits.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		store:   store,
		fetcher: fetcher,
		retry:   retry,
		pdfText: pdfText,
		clock:   clock,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Run executes one enrichment pass over at most limit permits. Single-permit
// failures are counted and sampled, never raised; only a store-level failure
// aborts the run. Safe to call repeatedly: writes are set-if-present.
func (w *Worker) Run(ctx context.Context, limit int) (permits.EnrichmentSummary, error) {
	summary := permits.EnrichmentSummary{RunID: uuid.NewString()}

	cutoff := w.clock.Now().Add(-w.cfg.RetryCooldown)
	batch, err := w.store.SelectNeedingEnrichment(ctx, limit, cutoff)
	if err != nil {
		return summary, fmt.Errorf("select enrichment batch: %w", err)
	}
	w.logger.Info("enrichment run started",
		zap.String("run_id", summary.RunID),
		zap.Int("batch", len(batch)),
	)

	for _, permit := range batch {
		if ctx.Err() != nil {
			break
		}
		result, enrichErr := w.enrichOne(ctx, permit)
		if enrichErr != nil {
			w.recordError(&summary, permit.StatusNo, enrichErr)
		}

		summary.Processed++
		switch result.ParseStatus {
		case permits.StatusOK:
			summary.Successful++
		case permits.StatusPartial:
			summary.Partial++
		case permits.StatusNoPDF:
			summary.NoPDF++
		case permits.StatusDownloadError:
			summary.DownloadErrors++
			summary.Failed++
		case permits.StatusParseError:
			summary.ParseErrors++
			summary.Failed++
		}
		metrics.ObserveEnrichment(string(result.ParseStatus))

		if err := w.store.UpdateEnrichment(ctx, permit.StatusNo, result); err != nil {
			w.recordError(&summary, permit.StatusNo, err)
			w.logger.Error("persist enrichment failed",
				zap.String("status_no", permit.StatusNo),
				zap.Error(err),
			)
		}
	}

	w.logger.Info("enrichment run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("processed", summary.Processed),
		zap.Int("ok", summary.Successful),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// enrichOne runs the full per-permit procedure and returns the result to
// persist. The returned error is diagnostic; the result's ParseStatus is
// already final either way.
func (w *Worker) enrichOne(ctx context.Context, permit permits.PermitRecord) (permits.EnrichmentResult, error) {
	now := w.clock.Now()
	result := permits.EnrichmentResult{LastEnrichedAt: &now}

	resp, err := w.fetchWithRetry(ctx, "detail", permit.DetailURL, "")
	if err != nil {
		result.ParseStatus = permits.StatusDownloadError
		return result, fmt.Errorf("detail page: %w", err)
	}

	var detail parse.DetailFields
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err == nil {
		pageURL, _ := url.Parse(resp.URL)
		detail = parse.Detail(doc, pageURL)
	}

	result.HorizontalWellbore = detail.WellboreType
	result.FieldName = detail.FieldName
	result.Acres = detail.Acres
	result.Section = detail.Section
	result.Block = detail.Block
	result.Survey = detail.Survey
	result.AbstractNo = detail.AbstractNo
	result.PDFURL = detail.PDFURL

	var pdfSub float64
	if detail.PDFURL != nil {
		pdfResp, err := w.fetchWithRetry(ctx, "pdf", *detail.PDFURL, resp.URL)
		if err != nil {
			result.ParseStatus = permits.StatusDownloadError
			result.ParseConfidence = w.confidence(result, 0)
			return result, fmt.Errorf("pdf: %w", err)
		}
		text, err := w.pdfText.ExtractText(ctx, pdfResp.Body)
		if err != nil {
			// Unreadable PDF is layout drift, not a transport failure;
			// keep whatever the HTML gave us.
			w.logger.Warn("pdf text extraction failed",
				zap.String("status_no", permit.StatusNo),
				zap.Error(err),
			)
		} else {
			pdfSub = w.mergePDF(&result, parse.PDFFieldParser(text))
		}
	}

	result.ParseConfidence = w.confidence(result, pdfSub)
	result.ParseStatus = w.resolveStatus(result, detail)
	return result, nil
}

// mergePDF folds PDF-parsed fields into the result. The PDF wins for the
// survey-location fields, acres and the well count, since the HTML versions
// come from a weaker position-based heuristic; field_name keeps the HTML
// value when one exists. Returns the PDF parser's subconfidence.
func (w *Worker) mergePDF(result *permits.EnrichmentResult, pdf parse.PDFFields) float64 {
	if pdf.Section != nil {
		result.Section = pdf.Section
	}
	if pdf.Block != nil {
		result.Block = pdf.Block
	}
	if pdf.Survey != nil {
		result.Survey = pdf.Survey
	}
	if pdf.AbstractNo != nil {
		result.AbstractNo = pdf.AbstractNo
	}
	if pdf.Acres != nil {
		result.Acres = pdf.Acres
	}
	if pdf.ReservoirWellCount != nil {
		result.ReservoirWellCount = pdf.ReservoirWellCount
	}
	if result.FieldName == nil && pdf.FieldName != nil {
		result.FieldName = pdf.FieldName
	}
	result.TextSnippet = pdf.Snippet
	return pdf.Confidence
}

// confidence computes the additive score over the four scored fields,
// clipped to [0,1].
func (w *Worker) confidence(result permits.EnrichmentResult, pdfSub float64) float64 {
	weights := w.cfg.Weights
	score := 0.0
	if result.HorizontalWellbore != nil {
		score += weights.HorizontalWellbore
	}
	if result.FieldName != nil {
		score += weights.FieldName
	}
	if result.Acres != nil {
		score += weights.Acres
	}
	if result.ReservoirWellCount != nil {
		bonus := pdfSub
		if bonus > weights.WellCountPDFBonusCap {
			bonus = weights.WellCountPDFBonusCap
		}
		score += weights.WellCount + bonus
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// resolveStatus picks the final parse status from what was recovered.
func (w *Worker) resolveStatus(result permits.EnrichmentResult, detail parse.DetailFields) permits.ParseStatus {
	weights := w.cfg.Weights
	switch {
	case result.ScoredFieldCount() >= weights.OKMinFields && result.ParseConfidence >= weights.OKThreshold:
		return permits.StatusOK
	case anyFieldRecovered(result):
		return permits.StatusPartial
	case detail.PDFURL == nil:
		return permits.StatusNoPDF
	default:
		return permits.StatusParseError
	}
}

func anyFieldRecovered(result permits.EnrichmentResult) bool {
	return result.HorizontalWellbore != nil ||
		result.FieldName != nil ||
		result.Acres != nil ||
		result.Section != nil ||
		result.Block != nil ||
		result.Survey != nil ||
		result.AbstractNo != nil ||
		result.ReservoirWellCount != nil
}

// fetchWithRetry fetches one URL with the fixed escalating-delay policy
// applied on throttling, server errors and transport failures.
func (w *Worker) fetchWithRetry(ctx context.Context, kind, rawURL, referer string) (permits.FetchResponse, error) {
	var (
		resp    permits.FetchResponse
		lastErr error
	)
	for attempt := 0; ; attempt++ {
		var err error
		resp, err = w.fetcher.Fetch(ctx, permits.FetchRequest{URL: rawURL, Referer: referer})
		metrics.ObserveFetch(kind, resp.StatusCode, resp.Duration)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
		}
		if !w.retry.ShouldRetry(resp.StatusCode, err, attempt) {
			return resp, lastErr
		}
		w.logger.Warn("transient fetch failure, backing off",
			zap.String("kind", kind),
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
		w.retry.Pause(ctx, attempt)
	}
}

func (w *Worker) recordError(summary *permits.EnrichmentSummary, statusNo string, err error) {
	if len(summary.Errors) >= w.cfg.ErrorSampleCap {
		return
	}
	summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", statusNo, err))
}
