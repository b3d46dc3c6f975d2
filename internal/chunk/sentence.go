package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is a single sentence with its source position and the section it
// belongs to.
type span struct {
	text    string
	section string
	offset  int
}

var (
	headingLine = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*$`)
	markerLine  = regexp.MustCompile(`^\[Page (\d+)\]$`)

	// A sentence boundary candidate: terminal punctuation, optional
	// closing quotes or brackets, then whitespace.
	sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
)

// Common abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "fig": {}, "no": {}, "dept": {}, "inc": {},
	"ltd": {}, "co": {}, "est": {}, "approx": {}, "e.g": {}, "i.e": {},
}

// segment splits text into sentence spans. Every newline ends a sentence,
// which keeps CSV rows, table lines, and "[Page K]" markers whole; within
// a line, boundaries are detected after terminal punctuation. Each span
// carries the nearest preceding markdown heading or page marker as its
// section.
func segment(text string) []span {
	var spans []span
	section := ""
	offset := 0

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			offset += len(line) + 1
			continue
		}

		if m := headingLine.FindStringSubmatch(trimmed); m != nil {
			section = m[1]
		} else if m := markerLine.FindStringSubmatch(trimmed); m != nil {
			section = "Page " + m[1]
		}

		searchFrom := 0
		for _, sentence := range splitProse(trimmed) {
			rel := strings.Index(line[searchFrom:], sentence)
			if rel < 0 {
				rel = 0
			}
			spans = append(spans, span{
				text:    sentence,
				section: section,
				offset:  offset + searchFrom + rel,
			})
			searchFrom += rel + len(sentence)
		}
		offset += len(line) + 1
	}
	return spans
}

// splitProse splits a single line into sentences on terminal punctuation,
// skipping boundaries after known abbreviations, single-letter initials,
// and before lowercase continuations.
func splitProse(text string) []string {
	matches := sentenceEnd.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}

	var out []string
	start := 0
	for _, m := range matches {
		if !isSentenceBoundary(text, m[0], m[1]) {
			continue
		}
		if piece := strings.TrimSpace(text[start:m[1]]); piece != "" {
			out = append(out, piece)
		}
		start = m[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// isSentenceBoundary reports whether the punctuation run starting at
// puncStart genuinely ends a sentence, given that after is the position
// following the trailing whitespace.
func isSentenceBoundary(text string, puncStart, after int) bool {
	if after < len(text) {
		r, _ := utf8.DecodeRuneInString(text[after:])
		if unicode.IsLower(r) {
			return false
		}
	}

	wordStart := puncStart
	for wordStart > 0 && !unicode.IsSpace(rune(text[wordStart-1])) {
		wordStart--
	}
	word := strings.ToLower(strings.Trim(text[wordStart:puncStart], `"'()[]`))
	if utf8.RuneCountInString(word) == 1 {
		return false
	}
	if _, ok := abbreviations[word]; ok {
		return false
	}
	return true
}
