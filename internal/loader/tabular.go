package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

// maxNarrowCell is the cell width up to which a row renders as a plain
// tab-joined line instead of column: value pairs.
const maxNarrowCell = 32

// sniffWindow is how many leading bytes the delimiter sniffer inspects.
const sniffWindow = 1024

// TabularExtractor handles CSV and TSV files.
type TabularExtractor struct{}

func (e *TabularExtractor) Extensions() []string { return []string{".csv", ".tsv"} }

func (e *TabularExtractor) MIMEType() string { return "text/csv" }

func (e *TabularExtractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	return e.extract(ctx, data, ".csv", "")
}

func (e *TabularExtractor) extract(_ context.Context, data []byte, ext, mimeHint string) (*Result, error) {
	text := normalizeText(data)
	delim := pickDelimiter(text, ext, mimeHint)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, sdcherrors.DecodeFailed("csv", errors.New("empty file"))
	}
	if err != nil {
		return nil, sdcherrors.DecodeFailed("csv", err)
	}

	lines := []string{strings.Join(header, "\t")}
	rowCount := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed rows are skipped, the rest of the file still loads.
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, sdcherrors.DecodeFailed("csv", err)
		}
		lines = append(lines, renderRow(header, record))
		rowCount++
	}

	mime := e.MIMEType()
	if delim == '\t' {
		mime = "text/tab-separated-values"
	}

	return &Result{
		Text:     strings.Join(lines, "\n"),
		MIMEType: mime,
		RowCount: intPtr(rowCount),
	}, nil
}

// pickDelimiter decides between comma and tab. The extension and MIME hint
// win; otherwise the leading bytes are sniffed and the more frequent
// separator is chosen, comma on ties.
func pickDelimiter(text, ext, mimeHint string) rune {
	if ext == ".tsv" || strings.Contains(mimeHint, "tab-separated") {
		return '\t'
	}
	sample := text
	if len(sample) > sniffWindow {
		sample = sample[:sniffWindow]
	}
	if strings.Count(sample, "\t") > strings.Count(sample, ",") {
		return '\t'
	}
	return ','
}

// renderRow produces one human-readable line per data row: tab-joined when
// every cell is narrow, column: value pairs otherwise.
func renderRow(header, record []string) string {
	narrow := true
	for _, cell := range record {
		if len(cell) > maxNarrowCell || strings.Contains(cell, "\n") {
			narrow = false
			break
		}
	}
	if narrow {
		return strings.Join(record, "\t")
	}

	pairs := make([]string, 0, len(record))
	for i, cell := range record {
		cell = strings.TrimSpace(strings.ReplaceAll(cell, "\n", " "))
		if cell == "" {
			continue
		}
		name := fmt.Sprintf("col%d", i+1)
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			name = strings.TrimSpace(header[i])
		}
		pairs = append(pairs, name+": "+cell)
	}
	return strings.Join(pairs, "; ")
}
