// Package trim removes boilerplate from extracted document text.
//
// Trimming is the tier-2 strategy: page numbers, running headers and
// footers, table-of-contents lines, and redundant whitespace are removed
// so that medium documents fit the context budget without chunking. The
// chunking path also trims before splitting so boilerplate never wastes
// chunk tokens.
package trim

import (
	"log/slog"
	"regexp"
	"strings"
)

// maxPasses bounds the trim fixed-point loop. Removing a line can expose
// new matches (a collapsed "Page  3" becomes "Page 3"), so Trim reapplies
// the pipeline until the text stops changing.
const maxPasses = 6

// Built-in boilerplate patterns. Each matches a full line; matches are
// removed. The blank-line run pattern is handled separately because it
// substitutes instead of removing.
var builtinPatterns = []*regexp.Regexp{
	// Table-of-contents headings.
	regexp.MustCompile(`(?im)^(table of contents|contents|index)\s*$`),
	// Dot-leader ToC entries: "Introduction ........ 3".
	regexp.MustCompile(`(?m)^.{1,100}\.{3,}\s*\d{1,4}\s*$`),
	// Page footers: "Page 3", "Page 3 of 12".
	regexp.MustCompile(`(?im)^\s*page \d+( of \d+)?\s*$`),
	// Bare page numbers on their own line.
	regexp.MustCompile(`(?m)^\s*\d+\s*$`),
	// Header/footer and copyright lines.
	regexp.MustCompile(`(?im)^(header|footer|copyright|all rights reserved).*$`),
	// Lines that are only a URL.
	regexp.MustCompile(`(?m)^\s*(https?://|www\.)\S+\s*$`),
	// Horizontal rules.
	regexp.MustCompile(`(?m)^[-=_*]{5,}\s*$`),
}

var (
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t]+`)
	pageMarker = regexp.MustCompile(`^\[Page \d+\]$`)
)

// boundarySpan is how many lines around a page marker are inspected for
// running headers and footers.
const boundarySpan = 3

// TokenCounter reports the token count of a text span.
type TokenCounter interface {
	Count(text string) int
}

// Stats reports the token counts before and after a trim.
type Stats struct {
	OriginalTokens int `json:"original_tokens"`
	TrimmedTokens  int `json:"trimmed_tokens"`
}

// Saved returns the number of tokens removed by the trim.
func (s Stats) Saved() int {
	return s.OriginalTokens - s.TrimmedTokens
}

// Trimmer applies boilerplate removal to document text.
type Trimmer struct {
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

// Option configures a Trimmer.
type Option func(*Trimmer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trimmer) {
		t.logger = logger
	}
}

// WithPatterns appends extra boilerplate patterns to the built-in set.
func WithPatterns(patterns []*regexp.Regexp) Option {
	return func(t *Trimmer) {
		t.patterns = append(t.patterns, patterns...)
	}
}

// New creates a Trimmer with the built-in pattern set.
func New(opts ...Option) *Trimmer {
	t := &Trimmer{
		patterns: append([]*regexp.Regexp(nil), builtinPatterns...),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trim removes boilerplate lines, compresses whitespace, and drops
// duplicate adjacent paragraphs. Paragraph boundaries and "[Page K]"
// markers survive. Trim is idempotent: trimming already-trimmed text
// returns it unchanged.
func (t *Trimmer) Trim(text string) string {
	out := text
	passes := 0
	for passes < maxPasses {
		next := t.trimOnce(out)
		passes++
		if next == out {
			break
		}
		out = next
	}
	t.logger.Debug("boilerplate_trimmed",
		"original_chars", len(text),
		"trimmed_chars", len(out),
		"passes", passes)
	return out
}

// TrimWithStats trims and reports token counts computed by counter.
func (t *Trimmer) TrimWithStats(text string, counter TokenCounter) (string, Stats) {
	trimmed := t.Trim(text)
	return trimmed, Stats{
		OriginalTokens: counter.Count(text),
		TrimmedTokens:  counter.Count(trimmed),
	}
}

func (t *Trimmer) trimOnce(text string) string {
	for _, pattern := range t.patterns {
		text = pattern.ReplaceAllString(text, "")
	}
	text = stripRunningLines(text)
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = dropDuplicateParagraphs(text)
	return strings.TrimSpace(text)
}

// stripRunningLines removes running headers and footers: the first
// non-blank line after a "[Page K]" marker and the last non-blank line
// before one, when the same line appears in that position on at least
// three pages. Lines near fewer than three markers are never touched.
func stripRunningLines(text string) string {
	lines := strings.Split(text, "\n")

	type candidate struct {
		idx    int
		value  string
		header bool
	}
	var candidates []candidate
	headerCounts := make(map[string]int)
	footerCounts := make(map[string]int)

	for i, line := range lines {
		if !pageMarker.MatchString(strings.TrimSpace(line)) {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+boundarySpan; j++ {
			v := strings.TrimSpace(lines[j])
			if v == "" {
				continue
			}
			if pageMarker.MatchString(v) {
				break
			}
			candidates = append(candidates, candidate{idx: j, value: v, header: true})
			headerCounts[v]++
			break
		}
		for j := i - 1; j >= 0 && j >= i-boundarySpan; j-- {
			v := strings.TrimSpace(lines[j])
			if v == "" {
				continue
			}
			if pageMarker.MatchString(v) {
				break
			}
			candidates = append(candidates, candidate{idx: j, value: v, header: false})
			footerCounts[v]++
			break
		}
	}

	drop := make(map[int]bool)
	for _, c := range candidates {
		if c.header && headerCounts[c.value] >= 3 {
			drop[c.idx] = true
		}
		if !c.header && footerCounts[c.value] >= 3 {
			drop[c.idx] = true
		}
	}
	if len(drop) == 0 {
		return text
	}

	kept := lines[:0]
	for i, line := range lines {
		if drop[i] {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// dropDuplicateParagraphs removes a paragraph when it is identical to the
// paragraph immediately before it.
func dropDuplicateParagraphs(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	if len(paragraphs) < 2 {
		return text
	}
	kept := paragraphs[:0]
	var prev string
	for _, p := range paragraphs {
		key := strings.TrimSpace(p)
		if key != "" && key == prev {
			continue
		}
		kept = append(kept, p)
		prev = key
	}
	return strings.Join(kept, "\n\n")
}
