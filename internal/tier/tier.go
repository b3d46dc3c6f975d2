// Package tier assigns documents to one of four processing tiers by token
// count. The tier decides the assembly strategy: direct injection, trimming,
// BM25 chunk ranking, or embedding retrieval.
package tier

import (
	"fmt"
	"log/slog"
)

// Tier identifies a processing tier.
type Tier int

const (
	// TierDirect injects the full document unchanged.
	TierDirect Tier = 1
	// TierTrim removes boilerplate before injection.
	TierTrim Tier = 2
	// TierChunk splits the document and ranks chunks with BM25.
	TierChunk Tier = 3
	// TierRetrieve selects chunks by embedding similarity.
	TierRetrieve Tier = 4
)

// Labels, colors, and descriptions surfaced to API clients.
var tierLabels = map[Tier]string{
	TierDirect:   "Direct Injection",
	TierTrim:     "Smart Trimming",
	TierChunk:    "Strategic Chunking",
	TierRetrieve: "RAG Retrieval",
}

var tierColors = map[Tier]string{
	TierDirect:   "#22c55e",
	TierTrim:     "#3b82f6",
	TierChunk:    "#f59e0b",
	TierRetrieve: "#ef4444",
}

var tierDescriptions = map[Tier]string{
	TierDirect:   "Full document fits in context window. No processing needed.",
	TierTrim:     "Moderate size. Boilerplate removal and whitespace compression applied.",
	TierChunk:    "Large document. Semantic chunking with BM25 relevance ranking.",
	TierRetrieve: "Very large document. Vector embeddings + similarity retrieval.",
}

// Label returns the tier's display label.
func (t Tier) Label() string { return tierLabels[t] }

// Color returns the tier's display color as a hex string.
func (t Tier) Color() string { return tierColors[t] }

// Description returns the tier's strategy description.
func (t Tier) Description() string { return tierDescriptions[t] }

// Info is the wire representation of a classification.
type Info struct {
	Tier        int    `json:"tier"`
	Label       string `json:"label"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// Info renders the tier for API responses.
func (t Tier) Info() Info {
	return Info{
		Tier:        int(t),
		Label:       t.Label(),
		Color:       t.Color(),
		Description: t.Description(),
	}
}

// Classifier maps token counts onto tiers using configured thresholds.
type Classifier struct {
	tier1Max int
	tier2Max int
	tier3Max int
	logger   *slog.Logger
}

// NewClassifier creates a classifier with the given thresholds.
// Thresholds must be strictly ascending.
func NewClassifier(tier1Max, tier2Max, tier3Max int, logger *slog.Logger) (*Classifier, error) {
	if tier1Max <= 0 || tier2Max <= tier1Max || tier3Max <= tier2Max {
		return nil, fmt.Errorf("tier thresholds must be strictly ascending, got %d/%d/%d",
			tier1Max, tier2Max, tier3Max)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		tier1Max: tier1Max,
		tier2Max: tier2Max,
		tier3Max: tier3Max,
		logger:   logger,
	}, nil
}

// Tier1Max returns the direct-injection ceiling in tokens. The assembler
// uses it to decide whether a trimmed tier-2 document can be injected whole.
func (c *Classifier) Tier1Max() int {
	return c.tier1Max
}

// Classify assigns a token count to a tier. Monotone: a larger count never
// yields a lower tier.
func (c *Classifier) Classify(tokenCount int) Tier {
	var t Tier
	switch {
	case tokenCount <= c.tier1Max:
		t = TierDirect
	case tokenCount <= c.tier2Max:
		t = TierTrim
	case tokenCount <= c.tier3Max:
		t = TierChunk
	default:
		t = TierRetrieve
	}

	c.logger.Debug("tier_classified",
		slog.Int("token_count", tokenCount),
		slog.Int("tier", int(t)),
		slog.String("label", t.Label()))
	return t
}
