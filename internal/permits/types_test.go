package permits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoredFieldCount(t *testing.T) {
	t.Parallel()

	assert.Zero(t, EnrichmentResult{}.ScoredFieldCount())

	s := "Horizontal"
	acres := 640.0
	n := 3
	result := EnrichmentResult{
		HorizontalWellbore: &s,
		Acres:              &acres,
		ReservoirWellCount: &n,
		Section:            &s, // location fields do not score
	}
	assert.Equal(t, 3, result.ScoredFieldCount())
}

func TestRetryableStatusesExcludeTerminalOnes(t *testing.T) {
	t.Parallel()

	assert.NotContains(t, RetryableStatuses, StatusOK)
	assert.NotContains(t, RetryableStatuses, StatusUnprocessed)
	assert.Contains(t, RetryableStatuses, StatusDownloadError)
	assert.Contains(t, RetryableStatuses, StatusNoPDF)
}
