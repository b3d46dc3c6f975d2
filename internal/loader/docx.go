package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

// DocxExtractor reads Word documents: body paragraphs in order, tables as
// tab-separated rows. DOCX is a zip of XML parts; only word/document.xml
// matters for text extraction.
type DocxExtractor struct{}

func (e *DocxExtractor) Extensions() []string { return []string{".docx"} }

func (e *DocxExtractor) MIMEType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

func (e *DocxExtractor) Extract(_ context.Context, data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, sdcherrors.DecodeFailed("docx", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, sdcherrors.DecodeFailed("docx", errors.New("word/document.xml missing"))
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, sdcherrors.DecodeFailed("docx", err)
	}
	defer rc.Close()

	text, err := walkDocumentXML(rc)
	if err != nil {
		return nil, sdcherrors.DecodeFailed("docx", err)
	}

	return &Result{
		Text:     text,
		MIMEType: e.MIMEType(),
	}, nil
}

// walkDocumentXML streams through document.xml collecting paragraph and
// table blocks. Paragraph text comes from w:t runs; w:tab and w:br map to
// their literal characters. Nested tables flatten into the outer one.
func walkDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		blocks     []string
		rows       []string
		rowCells   []string
		para       strings.Builder
		cell       strings.Builder
		tableDepth int
		inCell     bool
	)

	target := func() *strings.Builder {
		if inCell {
			return &cell
		}
		return &para
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth > 0 {
					rowCells = rowCells[:0]
				}
			case "tc":
				if tableDepth > 0 {
					cell.Reset()
					inCell = true
				}
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return "", err
				}
				target().WriteString(s)
			case "tab":
				target().WriteString("\t")
			case "br", "cr":
				target().WriteString("\n")
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if !inCell && tableDepth == 0 {
					if s := strings.TrimSpace(para.String()); s != "" {
						blocks = append(blocks, s)
					}
					para.Reset()
				} else if inCell {
					// Paragraph breaks inside a cell become spaces.
					cell.WriteString(" ")
				}
			case "tc":
				if inCell {
					rowCells = append(rowCells, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "tr":
				if tableDepth > 0 {
					if row := strings.Join(rowCells, "\t"); strings.TrimSpace(row) != "" {
						rows = append(rows, row)
					}
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(rows) > 0 {
					blocks = append(blocks, strings.Join(rows, "\n"))
					rows = nil
				}
			}
		}
	}

	return normalizeText([]byte(strings.Join(blocks, "\n\n"))), nil
}
