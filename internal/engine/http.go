package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/drillwatch/permit-pipeline/internal/metrics"
	"github.com/drillwatch/permit-pipeline/internal/parse"
	"github.com/drillwatch/permit-pipeline/internal/permits"
)

// HTTPEngine is the primary search path: a cookie-carrying Colly session that
// loads the query form, replays its fields against the public results
// endpoint, and walks the offset-paginated result set.
type HTTPEngine struct {
	cfg     Config
	limiter *Limiter
	clock   permits.Clock
	logger  *zap.Logger
}

// NewHTTPEngine constructs the engine. The limiter is shared with every
// other fetcher in the process.
func NewHTTPEngine(cfg Config, limiter *Limiter, clock permits.Clock, logger *zap.Logger) (*HTTPEngine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HTTPEngine{
		cfg:     cfg,
		limiter: limiter,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Name identifies the engine in results and logs.
func (e *HTTPEngine) Name() string { return "http" }

// Search runs one dual-date query. Transport errors propagate to the caller
// uncaught; retrying or switching engines is the caller's responsibility.
func (e *HTTPEngine) Search(ctx context.Context, query permits.SearchQuery) (permits.SearchResult, error) {
	maxPages := query.MaxPages
	if maxPages <= 0 {
		maxPages = e.cfg.MaxPages
	}

	session := newFetchSession(e.cfg)

	if err := e.limiter.Wait(ctx); err != nil {
		return permits.SearchResult{}, err
	}
	page, err := session.get(ctx, e.cfg.formURL())
	if err != nil {
		return permits.SearchResult{}, fmt.Errorf("load search form: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return permits.SearchResult{}, fmt.Errorf("parse search form page: %w", err)
	}
	if looksLikeLogin(doc, page.URL, e.cfg.LoginMarkers) {
		return permits.SearchResult{}, fmt.Errorf("load search form: %w", ErrAuthRedirect)
	}

	form, err := parseSearchForm(doc, e.cfg)
	if err != nil {
		return permits.SearchResult{}, fmt.Errorf("harvest search form: %w", err)
	}
	form.fields[form.beginField] = query.BeginDate
	form.fields[form.endField] = query.EndDate

	// Submit to the rewritten public endpoint, not the form's own action;
	// the action intermittently routes through the login gateway.
	if err := e.limiter.Wait(ctx); err != nil {
		return permits.SearchResult{}, err
	}
	page, err = session.post(ctx, e.cfg.submitURL(), form.fields)
	if err != nil {
		return permits.SearchResult{}, fmt.Errorf("submit search: %w", err)
	}

	result := permits.SearchResult{
		Method:    e.Name(),
		FetchedAt: e.clock.Now(),
	}
	current, err := url.Parse(page.URL)
	if err != nil {
		return permits.SearchResult{}, fmt.Errorf("parse result url: %w", err)
	}

	for {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			return permits.SearchResult{}, fmt.Errorf("parse result page %d: %w", result.Pages+1, err)
		}
		if looksLikeLogin(doc, page.URL, e.cfg.LoginMarkers) {
			return permits.SearchResult{}, fmt.Errorf("result page %d: %w", result.Pages+1, ErrAuthRedirect)
		}

		rows, err := parse.ResultTable(doc, current)
		if err != nil {
			// Layout drift or an empty result set; both end pagination.
			e.logger.Warn("no results table on page",
				zap.Int("page", result.Pages+1),
				zap.String("url", current.String()),
			)
			result.Pages++
			break
		}
		result.Items = append(result.Items, rows...)
		result.Pages++
		metrics.ObserveSearchPage(e.Name(), len(rows))

		if result.Pages >= maxPages {
			break
		}
		next, ok := nextPageURL(doc, current, e.cfg.OffsetParam)
		if !ok || next == current.String() {
			// Missing next link or a self-referencing one: done either way.
			break
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return permits.SearchResult{}, err
		}
		page, err = session.get(ctx, next)
		if err != nil {
			return permits.SearchResult{}, fmt.Errorf("fetch result page %d: %w", result.Pages+1, err)
		}
		current, err = url.Parse(page.URL)
		if err != nil {
			return permits.SearchResult{}, fmt.Errorf("parse result url: %w", err)
		}
	}

	result.Count = len(result.Items)
	e.logger.Info("search finished",
		zap.String("engine", e.Name()),
		zap.Int("pages", result.Pages),
		zap.Int("rows", result.Count),
	)
	return result, nil
}
