package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// unit is a sentence (or a token-bounded piece of an oversize sentence)
// ready for accumulation.
type unit struct {
	text    string
	tokens  int
	section string
	offset  int
}

// Splitter turns canonical text into chunks.
type Splitter struct {
	tokenizer Tokenizer
	target    int
	overlap   int
	max       int
	logger    *slog.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithTarget sets the target chunk size in tokens.
func WithTarget(tokens int) Option {
	return func(s *Splitter) {
		s.target = tokens
	}
}

// WithOverlap sets the token overlap carried between consecutive chunks.
func WithOverlap(tokens int) Option {
	return func(s *Splitter) {
		s.overlap = tokens
	}
}

// WithMaxTokens sets the hard per-chunk token limit.
func WithMaxTokens(tokens int) Option {
	return func(s *Splitter) {
		s.max = tokens
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Splitter) {
		s.logger = logger
	}
}

// NewSplitter creates a Splitter backed by the given tokenizer.
func NewSplitter(tokenizer Tokenizer, opts ...Option) (*Splitter, error) {
	s := &Splitter{
		tokenizer: tokenizer,
		target:    DefaultTargetTokens,
		overlap:   DefaultOverlapTokens,
		max:       DefaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if s.target <= 0 {
		return nil, fmt.Errorf("chunk target must be positive, got %d", s.target)
	}
	if s.max < s.target {
		return nil, fmt.Errorf("chunk max %d must be >= target %d", s.max, s.target)
	}
	if s.overlap < 0 || s.overlap >= s.target {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, target)", s.overlap)
	}
	return s, nil
}

// Split cuts text into chunks. Chunks close once they reach the target
// size, never exceed the hard maximum, and consecutive chunks share a
// sentence-aligned suffix of at least the configured overlap when one
// exists. Indices are dense starting at zero.
func (s *Splitter) Split(ctx context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	spans := segment(text)
	units := make([]unit, 0, len(spans))
	for i, sp := range spans {
		if i%128 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n := s.tokenizer.Count(sp.text)
		if n <= s.max {
			units = append(units, unit{text: sp.text, tokens: n, section: sp.section, offset: sp.offset})
			continue
		}
		// Oversize sentence: cut on token boundaries.
		running := sp.offset
		for _, piece := range s.tokenizer.SplitByTokens(sp.text, s.max) {
			units = append(units, unit{
				text:    piece,
				tokens:  s.tokenizer.Count(piece),
				section: sp.section,
				offset:  running,
			})
			running += len(piece)
		}
	}

	var chunks []Chunk
	var cur []unit
	curTokens := 0
	fresh := 0 // units added since the last emit; carried overlap does not count

	for _, u := range units {
		if len(cur) > 0 && (curTokens >= s.target || curTokens+u.tokens > s.max) {
			if fresh > 0 {
				chunks = append(chunks, s.newChunk(len(chunks), cur, curTokens))
				cur, curTokens = overlapTail(cur, s.overlap)
				fresh = 0
			}
			// Shed the carried overlap rather than blow the hard cap.
			if curTokens+u.tokens > s.max {
				cur, curTokens = nil, 0
			}
		}
		cur = append(cur, u)
		curTokens += u.tokens
		fresh++
	}
	if fresh > 0 && len(cur) > 0 {
		chunks = append(chunks, s.newChunk(len(chunks), cur, curTokens))
	}

	s.logger.Debug("document_chunked",
		"sentences", len(units),
		"chunks", len(chunks),
		"target_tokens", s.target,
		"overlap_tokens", s.overlap)
	return chunks, nil
}

func (s *Splitter) newChunk(index int, units []unit, tokens int) Chunk {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = u.text
	}
	text := strings.Join(parts, " ")
	return Chunk{
		Index:      index,
		Text:       text,
		TokenCount: tokens,
		Section:    units[0].section,
		StartChar:  units[0].offset,
		EndChar:    units[0].offset + len(text),
	}
}

// overlapTail returns the smallest proper suffix of units whose token
// count reaches the overlap budget, or the largest proper suffix when
// none does. Single-unit chunks carry no overlap.
func overlapTail(units []unit, overlap int) ([]unit, int) {
	if overlap <= 0 || len(units) < 2 {
		return nil, 0
	}
	start := len(units) - 1
	total := units[start].tokens
	for start > 1 && total < overlap {
		start--
		total += units[start].tokens
	}
	tail := append([]unit(nil), units[start:]...)
	return tail, total
}
