package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/drillwatch/permit-pipeline/internal/permits"
)

// Fetcher is the single-URL fetch path used by the enrichment worker for
// detail pages and PDFs. Each Fetch clones a fresh collector, so no cookie
// state leaks between permits; the shared limiter still gates every request.
type Fetcher struct {
	cfg           Config
	limiter       *Limiter
	baseCollector *colly.Collector
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg Config, limiter *Limiter) *Fetcher {
	cfg = cfg.withDefaults()
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		baseCollector: c,
	}
}

// Fetch executes one HTTP GET and returns body plus metadata. Non-2xx
// responses are returned, not treated as errors; the caller's retry policy
// decides what is transient.
func (f *Fetcher) Fetch(ctx context.Context, request permits.FetchRequest) (permits.FetchResponse, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return permits.FetchResponse{}, err
	}

	var (
		result   permits.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.OnRequest(func(r *colly.Request) {
		if request.Referer != "" {
			r.Headers.Set("Referer", request.Referer)
		}
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = permits.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			result.StatusCode = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return permits.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return result, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
		if fetchErr != nil {
			return result, fmt.Errorf("fetch %s: %w", request.URL, fetchErr)
		}
		return result, nil
	}
}
