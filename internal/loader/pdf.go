package loader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dslipak/pdf"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

// PDFExtractor extracts text page by page with [Page K] markers.
type PDFExtractor struct {
	logger *slog.Logger
}

func (e *PDFExtractor) Extensions() []string { return []string{".pdf"} }

func (e *PDFExtractor) MIMEType() string { return "application/pdf" }

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (result *Result, err error) {
	// The pdf package panics on some malformed files; report those as
	// decode failures instead of taking the process down.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = sdcherrors.DecodeFailed("pdf", fmt.Errorf("parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, sdcherrors.DecodeFailed("pdf", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, sdcherrors.Cancelled(err)
		}

		text := ""
		page := reader.Page(i)
		if !page.V.IsNull() {
			extracted, err := page.GetPlainText(nil)
			if err != nil {
				// A single unreadable page does not sink the document.
				if e.logger != nil {
					e.logger.Warn("pdf_page_unreadable",
						slog.Int("page", i),
						slog.String("error", err.Error()))
				}
			} else {
				text = extracted
			}
		}
		pages = append(pages, assemblePage(i, text))
	}

	return &Result{
		Text:      strings.Join(pages, "\n\n"),
		MIMEType:  e.MIMEType(),
		PageCount: intPtr(total),
	}, nil
}

// assemblePage renders one page body under its marker. Empty pages keep
// their marker so page numbering survives trimming and chunking.
func assemblePage(number int, text string) string {
	body := strings.TrimRight(normalizeText([]byte(text)), "\n")
	if strings.TrimSpace(body) == "" {
		return fmt.Sprintf("[Page %d]", number)
	}
	return fmt.Sprintf("[Page %d]\n%s", number, body)
}
