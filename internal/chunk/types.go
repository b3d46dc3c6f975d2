// Package chunk splits canonical document text into token-bounded,
// sentence-aligned chunks for lexical ranking and embedding retrieval.
//
// Splitting is greedy: sentences accumulate until the chunk reaches the
// target size, consecutive chunks share a sentence-aligned overlap, and
// no chunk ever exceeds the hard maximum. Newlines are implicit sentence
// boundaries so CSV rows and page markers stay intact.
package chunk

// Default chunking parameters.
const (
	DefaultTargetTokens  = 512
	DefaultOverlapTokens = 64
	DefaultMaxTokens     = 768
)

// Chunk is one contiguous span of a split document.
type Chunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Section    string `json:"section,omitempty"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
}

// Tokenizer provides the token operations splitting depends on.
type Tokenizer interface {
	// Count returns the number of tokens in text.
	Count(text string) int
	// SplitByTokens cuts text into pieces of at most maxTokens tokens.
	SplitByTokens(text string, maxTokens int) []string
}
