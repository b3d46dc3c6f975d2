// Package token wraps the cl100k_base byte-pair encoding used for every
// token count in the service. Counting here is the single source of truth:
// tiers, budgets, chunk sizes, and assembled outputs all measure with the
// same encoding.
package token

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// EncodingName is the BPE encoding used throughout the service.
// It matches the embedding models (text-embedding-3-small) the gateway calls.
const EncodingName = "cl100k_base"

// Tokenizer counts and slices text on cl100k_base token boundaries.
// It is safe for concurrent use.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a Tokenizer backed by cl100k_base.
// The encoding tables are fetched and cached on first use; failure to load
// them is fatal for the service.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(EncodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", EncodingName, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Encoding returns the encoding name.
func (t *Tokenizer) Encoding() string {
	return EncodingName
}

// Count returns the number of tokens in text. Deterministic: the same text
// always yields the same count.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Slice returns the longest prefix of text that is at most maxTokens whole
// tokens. A non-positive maxTokens yields the empty string; text at or under
// the limit comes back unchanged.
func (t *Tokenizer) Slice(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	decoded := t.enc.Decode(tokens[:maxTokens])
	// A cut can land mid-rune in the byte stream; drop the dangling bytes.
	return strings.ToValidUTF8(decoded, "")
}

// SplitByTokens splits text into consecutive pieces of at most maxTokens
// tokens each. Used for sentences too large to fit a single chunk.
func (t *Tokenizer) SplitByTokens(text string, maxTokens int) []string {
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		return []string{text}
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return []string{text}
	}

	pieces := make([]string, 0, (len(tokens)+maxTokens-1)/maxTokens)
	for start := 0; start < len(tokens); start += maxTokens {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := strings.ToValidUTF8(t.enc.Decode(tokens[start:end]), "")
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}
