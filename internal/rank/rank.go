// Package rank scores document chunks against queries using BM25.
//
// Corpus statistics are computed once at index build and serialized into
// the index artifact, so query-time ranking never re-tokenizes chunk
// text. Rankings are fully deterministic: equal scores order by
// ascending chunk index.
package rank

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Default BM25 tuning parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// stopwords is the classic Lucene English stopword list.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "such": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// Terms normalizes text into BM25 terms: NFKC fold, lowercase, split on
// non-letter/digit runs, stopwords and single-character tokens dropped.
func Terms(text string) []string {
	folded := strings.ToLower(norm.NFKC.String(text))

	var terms []string
	start := -1
	for i, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if t := folded[start:i]; keepTerm(t) {
				terms = append(terms, t)
			}
			start = -1
		}
	}
	if start >= 0 {
		if t := folded[start:]; keepTerm(t) {
			terms = append(terms, t)
		}
	}
	return terms
}

func keepTerm(t string) bool {
	if utf8.RuneCountInString(t) < 2 {
		return false
	}
	_, stop := stopwords[t]
	return !stop
}

// Stats holds the corpus statistics BM25 scoring needs.
type Stats struct {
	ChunkCount int              `json:"chunk_count"`
	AvgLen     float64          `json:"avg_len"`
	Lengths    []int            `json:"lengths"`
	DocFreq    map[string]int   `json:"doc_freq"`
	TermFreqs  []map[string]int `json:"term_freqs"`
}

// BuildStats tokenizes every chunk text and derives term and document
// frequencies.
func BuildStats(texts []string) *Stats {
	s := &Stats{
		ChunkCount: len(texts),
		Lengths:    make([]int, len(texts)),
		DocFreq:    make(map[string]int),
		TermFreqs:  make([]map[string]int, len(texts)),
	}
	total := 0
	for i, text := range texts {
		terms := Terms(text)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		s.TermFreqs[i] = tf
		s.Lengths[i] = len(terms)
		total += len(terms)
		for t := range tf {
			s.DocFreq[t]++
		}
	}
	if len(texts) > 0 {
		s.AvgLen = float64(total) / float64(len(texts))
	}
	return s
}

// Params are the BM25 tuning parameters.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns the standard parameters.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// ScoredChunk pairs a chunk index with its relevance score.
type ScoredChunk struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Scorer ranks chunks using precomputed corpus statistics.
type Scorer struct {
	params Params
	stats  *Stats
}

// NewScorer creates a Scorer over stats. Zero parameters fall back to the
// defaults.
func NewScorer(stats *Stats, params Params) *Scorer {
	if params.K1 == 0 {
		params.K1 = DefaultK1
	}
	if params.B == 0 {
		params.B = DefaultB
	}
	return &Scorer{params: params, stats: stats}
}

// Rank scores every chunk against query and returns all of them sorted by
// descending score, ties broken by ascending chunk index.
func (s *Scorer) Rank(query string) []ScoredChunk {
	queryTerms := Terms(query)

	scored := make([]ScoredChunk, s.stats.ChunkCount)
	for i := range scored {
		scored[i] = ScoredChunk{Index: i, Score: s.scoreChunk(i, queryTerms)}
	}
	sort.Slice(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].Index < scored[b].Index
	})
	return scored
}

// scoreChunk sums the BM25 contribution of each query term occurrence:
//
//	IDF(t) * tf * (k1+1) / (tf + k1*(1 - b + b*|c|/avgLen))
//
// with IDF(t) = ln((N - df + 0.5)/(df + 0.5) + 1).
func (s *Scorer) scoreChunk(idx int, queryTerms []string) float64 {
	st := s.stats
	tf := st.TermFreqs[idx]
	docLen := float64(st.Lengths[idx])

	score := 0.0
	for _, term := range queryTerms {
		df := float64(st.DocFreq[term])
		if df == 0 {
			continue
		}
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		idf := math.Log((float64(st.ChunkCount)-df+0.5)/(df+0.5) + 1)
		denom := f + s.params.K1*(1-s.params.B+s.params.B*docLen/st.AvgLen)
		score += idf * f * (s.params.K1 + 1) / denom
	}
	return score
}
