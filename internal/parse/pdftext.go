package parse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// PDFTextExtractor turns fetched PDF bytes into text via pdfcpu. Extraction
// goes through a temp directory because pdfcpu's content extraction writes
// one file per page.
type PDFTextExtractor struct {
	tempDir string
	logger  *zap.Logger
}

// NewPDFTextExtractor creates an extractor rooted at the system temp dir.
func NewPDFTextExtractor(logger *zap.Logger) (*PDFTextExtractor, error) {
	tempDir := filepath.Join(os.TempDir(), "permit-pdf")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pdf temp dir: %w", err)
	}
	return &PDFTextExtractor{
		tempDir: tempDir,
		logger:  logger,
	}, nil
}

// ExtractText extracts the text content of every page, concatenated in page
// order. Pages pdfcpu cannot decode contribute nothing rather than failing
// the whole document.
func (e *PDFTextExtractor) ExtractText(ctx context.Context, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("pdf extract canceled: %w", err)
	}

	id := uuid.NewString()
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("permit_%s.pdf", id))
	if err := os.WriteFile(tempFile, content, 0o644); err != nil {
		return "", fmt.Errorf("write temp pdf: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%s", id))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create page dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extract pdf content: %w", err)
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("read page dir: %w", err)
	}
	pageTexts := make(map[int]string, pdfCtx.PageCount)
	pageNums := make([]int, 0, pdfCtx.PageCount)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			e.logger.Warn("skipping unreadable pdf page", zap.Int("page", pageNum), zap.Error(err))
			continue
		}
		pageTexts[pageNum] = string(data)
		pageNums = append(pageNums, pageNum)
	}
	sort.Ints(pageNums)

	var builder strings.Builder
	for _, n := range pageNums {
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(pageTexts[n])
	}
	return builder.String(), nil
}
