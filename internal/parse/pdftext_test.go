package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPDFTextExtractorRejectsGarbage(t *testing.T) {
	t.Parallel()

	e, err := NewPDFTextExtractor(zap.NewNop())
	require.NoError(t, err)

	_, err = e.ExtractText(context.Background(), []byte("not a pdf"))
	require.Error(t, err)
}

func TestPDFTextExtractorCanceledContext(t *testing.T) {
	t.Parallel()

	e, err := NewPDFTextExtractor(zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ExtractText(ctx, []byte("%PDF-1.4"))
	require.Error(t, err)
}
