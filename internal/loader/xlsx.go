package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"

	"github.com/xuri/excelize/v2"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

// XLSXExtractor renders workbooks sheet by sheet: a "# Sheet: <name>"
// banner followed by CSV-serialized rows.
type XLSXExtractor struct{}

func (e *XLSXExtractor) Extensions() []string { return []string{".xlsx"} }

func (e *XLSXExtractor) MIMEType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExtractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, sdcherrors.DecodeFailed("xlsx", err)
	}
	defer f.Close()

	var blocks []string
	rowCount := 0
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, sdcherrors.Cancelled(err)
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, sdcherrors.DecodeFailed("xlsx", err)
		}
		if len(rows) == 0 {
			blocks = append(blocks, "# Sheet: "+sheet)
			continue
		}

		var sb strings.Builder
		sb.WriteString("# Sheet: " + sheet + "\n")
		w := csv.NewWriter(&sb)
		for _, row := range rows {
			_ = w.Write(row)
		}
		w.Flush()
		blocks = append(blocks, strings.TrimRight(sb.String(), "\n"))

		// First row per sheet is the header.
		rowCount += len(rows) - 1
	}

	return &Result{
		Text:     normalizeText([]byte(strings.Join(blocks, "\n\n"))),
		MIMEType: e.MIMEType(),
		RowCount: intPtr(rowCount),
	}, nil
}
