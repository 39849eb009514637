package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/drillwatch/permit-pipeline/internal/metrics"
	"github.com/drillwatch/permit-pipeline/internal/parse"
	"github.com/drillwatch/permit-pipeline/internal/permits"
)

// BrowserEngine executes the same search contract through headless Chrome.
// The portal's login gateway keys on request fingerprints the plain HTTP path
// cannot fake, so when that path gets bounced this one usually still works.
type BrowserEngine struct {
	cfg         Config
	limiter     *Limiter
	clock       permits.Clock
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewBrowserEngine creates the engine and its Chrome exec allocator. Close
// must be called to reap the browser processes.
func NewBrowserEngine(cfg Config, limiter *Limiter, clock permits.Clock, logger *zap.Logger) (*BrowserEngine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserEngine{
		cfg:         cfg,
		limiter:     limiter,
		clock:       clock,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (e *BrowserEngine) Close() {
	e.allocCancel()
}

// Name identifies the engine in results and logs.
func (e *BrowserEngine) Name() string { return "browser" }

// Search fills the query form at DOM level and paginates by clicking the
// next control, handing each rendered page to the shared result parser.
func (e *BrowserEngine) Search(ctx context.Context, query permits.SearchQuery) (permits.SearchResult, error) {
	maxPages := query.MaxPages
	if maxPages <= 0 {
		maxPages = e.cfg.MaxPages
	}

	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	defer taskCancel()
	stop := forwardCancel(ctx, taskCancel)
	defer stop()

	if err := e.limiter.Wait(ctx); err != nil {
		return permits.SearchResult{}, err
	}
	html, location, err := e.submitSearch(taskCtx, query)
	if err != nil {
		return permits.SearchResult{}, err
	}

	result := permits.SearchResult{
		Method:    e.Name(),
		FetchedAt: e.clock.Now(),
	}

	for {
		doc, current, err := e.renderedDocument(html, location)
		if err != nil {
			return permits.SearchResult{}, err
		}
		if looksLikeLogin(doc, location, e.cfg.LoginMarkers) {
			return permits.SearchResult{}, fmt.Errorf("result page %d: %w", result.Pages+1, ErrAuthRedirect)
		}

		rows, err := parse.ResultTable(doc, current)
		if err != nil {
			e.logger.Warn("no results table on rendered page",
				zap.Int("page", result.Pages+1),
				zap.String("url", location),
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
		if !ok || next == location {
			break
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return permits.SearchResult{}, err
		}
		html, location, err = e.advancePage(taskCtx, next)
		if err != nil {
			return permits.SearchResult{}, fmt.Errorf("advance to page %d: %w", result.Pages+1, err)
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

// submitSearch navigates to the form, fills both date inputs by name, and
// clicks submit.
func (e *BrowserEngine) submitSearch(taskCtx context.Context, query permits.SearchQuery) (html, location string, err error) {
	navCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavTimeout)
	defer cancel()

	beginSel := fmt.Sprintf(`input[name="%s"]`, e.cfg.BeginDateField)
	endSel := fmt.Sprintf(`input[name="%s"]`, e.cfg.EndDateField)

	actions := []chromedp.Action{
		e.networkSetup(),
		chromedp.Navigate(e.cfg.formURL()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.WaitVisible(beginSel, chromedp.ByQuery),
		chromedp.SetValue(beginSel, query.BeginDate, chromedp.ByQuery),
		chromedp.SetValue(endSel, query.EndDate, chromedp.ByQuery),
		chromedp.Click(`input[type="submit"], button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		return "", "", fmt.Errorf("submit search form: %w", err)
	}
	return html, location, nil
}

// advancePage clicks the anchor carrying the next offset when it is still on
// the page, falling back to direct navigation when the click misfires or
// lands somewhere other than the wanted offset. The portal lists backward
// links before forward ones, so the selector must name the exact offset.
func (e *BrowserEngine) advancePage(taskCtx context.Context, next string) (html, location string, err error) {
	target, err := url.Parse(next)
	if err != nil {
		return "", "", fmt.Errorf("parse next page url: %w", err)
	}
	wantOffset := offsetFrom(target, e.cfg.OffsetParam)

	clickCtx, clickCancel := context.WithTimeout(taskCtx, e.cfg.NavTimeout)
	clickErr := chromedp.Run(clickCtx,
		chromedp.Click(offsetAnchorSelector(e.cfg.OffsetParam, wantOffset), chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	clickCancel()
	if clickErr == nil && landedOnOffset(location, e.cfg.OffsetParam, wantOffset) {
		return html, location, nil
	}

	navCtx, navCancel := context.WithTimeout(taskCtx, e.cfg.NavTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(next),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", "", fmt.Errorf("navigate next page: %w", err)
	}
	return html, location, nil
}

// offsetAnchorSelector targets only anchors whose href carries the exact
// wanted offset value, never the backward links that precede them.
func offsetAnchorSelector(offsetParam string, offset int) string {
	return fmt.Sprintf(`a[href*="%s=%d"]`, offsetParam, offset)
}

// landedOnOffset reports whether the rendered location carries the offset
// the pagination step aimed for.
func landedOnOffset(location, offsetParam string, want int) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return offsetFrom(u, offsetParam) == want
}

func (e *BrowserEngine) renderedDocument(html, location string) (*goquery.Document, *url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return nil, nil, fmt.Errorf("parse rendered page: %w", err)
	}
	current, err := parseLocation(location)
	if err != nil {
		return nil, nil, err
	}
	return doc, current, nil
}

func (e *BrowserEngine) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if e.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(e.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// forwardCancel propagates cancellation of the caller's context into the
// chromedp task context.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func parseLocation(location string) (*url.URL, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("rendered page has no location")
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse rendered location: %w", err)
	}
	return u, nil
}
