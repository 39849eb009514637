package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/drillwatch/permit-pipeline/internal/metrics"
	"github.com/drillwatch/permit-pipeline/internal/permits"
)

// FallbackSearcher runs a closed, ordered set of search engines behind the
// single SearchEngine contract. An auth redirect or hard transport failure
// from one engine falls through to the next; anything else surfaces as-is.
type FallbackSearcher struct {
	engines []permits.SearchEngine
	logger  *zap.Logger
}

// NewFallbackSearcher builds the policy over the configured engine order.
func NewFallbackSearcher(logger *zap.Logger, engines ...permits.SearchEngine) *FallbackSearcher {
	return &FallbackSearcher{
		engines: engines,
		logger:  logger,
	}
}

// Name reports the composite identity.
func (s *FallbackSearcher) Name() string { return "fallback" }

// Search tries each engine in order and returns the first success.
func (s *FallbackSearcher) Search(ctx context.Context, query permits.SearchQuery) (permits.SearchResult, error) {
	var lastErr error
	for i, eng := range s.engines {
		result, err := eng.Search(ctx, query)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !fallThrough(err) {
			return permits.SearchResult{}, err
		}
		if i < len(s.engines)-1 {
			metrics.ObserveEngineFallback()
			s.logger.Warn("search engine failed, switching",
				zap.String("engine", eng.Name()),
				zap.Error(err),
			)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no search engines configured")
	}
	return permits.SearchResult{}, lastErr
}

// fallThrough decides whether the next engine gets a turn. Cancellation is
// final; an auth redirect or transport failure is exactly what the second
// engine exists for.
func fallThrough(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
