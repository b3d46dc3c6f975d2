package loader

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

// utf8BOM is stripped from the head of text files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextExtractor handles plain text and Markdown.
type TextExtractor struct{}

func (e *TextExtractor) Extensions() []string { return []string{".txt", ".md"} }

func (e *TextExtractor) MIMEType() string { return "text/plain" }

func (e *TextExtractor) Extract(_ context.Context, data []byte) (*Result, error) {
	return &Result{
		Text:     normalizeText(data),
		MIMEType: e.MIMEType(),
	}, nil
}

// normalizeText decodes bytes as UTF-8, stripping a BOM, replacing invalid
// sequences with U+FFFD, and normalizing line endings to \n.
func normalizeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)

	var text string
	if utf8.Valid(data) {
		text = string(data)
	} else {
		text = strings.ToValidUTF8(string(data), "�")
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text
}
