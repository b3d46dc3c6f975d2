package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
)

const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

var staticTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// staticStopwords are common English words excluded from hashing so
// vectors are dominated by content-bearing terms.
var staticStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"if": {}, "then": {}, "for": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "at": {}, "by": {}, "with": {}, "from": {}, "as": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"not": {}, "no": {}, "do": {}, "does": {}, "did": {}, "have": {},
	"has": {}, "had": {}, "will": {}, "would": {}, "can": {}, "could": {},
	"there": {}, "here": {}, "when": {}, "where": {}, "how": {}, "what": {},
	"all": {}, "each": {}, "more": {}, "most": {}, "some": {}, "such": {},
	"than": {}, "too": {}, "very": {}, "just": {}, "about": {}, "into": {},
}

// StaticEmbedder produces deterministic embeddings by hashing word
// tokens and character n-grams into a fixed number of buckets. Quality
// is well below a learned model, but it needs no network and no API
// key, and the same text always maps to the same vector.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a hash-based offline embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates a deterministic embedding for the text. Text with no
// usable tokens maps to the zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("static embedder is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, StaticDimensions)
	tokens := staticTokens(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		vec[hashToBucket(tok)] += staticTokenWeight
		for _, gram := range ngrams(tok, staticNgramSize) {
			vec[hashToBucket(gram)] += staticNgramWeight
		}
	}
	normalizeVector(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the identifier for this embedder.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available reports whether the embedder can serve requests.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder as closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// staticTokens lowercases the text and extracts alphanumeric tokens,
// dropping stopwords.
func staticTokens(text string) []string {
	raw := staticTokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := staticStopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// ngrams returns the character n-grams of a token. Tokens no longer
// than n contribute no grams beyond the token itself.
func ngrams(tok string, n int) []string {
	if len(tok) <= n {
		return nil
	}
	grams := make([]string, 0, len(tok)-n+1)
	for i := 0; i+n <= len(tok); i++ {
		grams = append(grams, tok[i:i+n])
	}
	return grams
}

func hashToBucket(s string) int {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int(h.Sum64() % StaticDimensions)
}

// normalizeVector scales vec to unit length in place. Zero vectors are
// left unchanged.
func normalizeVector(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}
