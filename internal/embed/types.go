// Package embed provides text embedding for semantic retrieval.
//
// Two embedder families are supported: the OpenAI API for production
// quality vectors, and a deterministic hash-based embedder that works
// offline. The Gateway composes them, preferring the API and degrading
// to the local embedder when the API is unconfigured or unreachable.
package embed

import "context"

const (
	// PrimaryModel is the default OpenAI embedding model.
	PrimaryModel = "text-embedding-3-small"

	// PrimaryDimensions is the vector width requested from PrimaryModel.
	PrimaryDimensions = 1536

	// StaticDimensions is the vector width of the offline fallback.
	StaticDimensions = 384

	// MaxBatchSize is the largest text batch a single EmbedBatch call
	// accepts.
	MaxBatchSize = 100
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result
	// preserves input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the identifier recorded alongside persisted
	// vectors so later queries embed with the same model.
	ModelName() string

	// Available checks if the embedder is ready to use.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}
