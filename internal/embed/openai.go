package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIEmbedder generates embeddings through the OpenAI API.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithModel overrides the embedding model.
func WithModel(model string) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithDimensions overrides the requested vector width.
func WithDimensions(dims int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if dims > 0 {
			e.dims = dims
		}
	}
}

// NewOpenAIEmbedder creates an API-backed embedder using the given key.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIOption) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  PrimaryModel,
		dims:   PrimaryDimensions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.request(ctx, openai.EmbeddingNewParamsInputUnion{
		OfString: openai.String(text),
	}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for up to MaxBatchSize texts in one
// API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d texts exceeds limit of %d", len(texts), MaxBatchSize)
	}
	return e.request(ctx, openai.EmbeddingNewParamsInputUnion{
		OfArrayOfStrings: texts,
	}, len(texts))
}

func (e *OpenAIEmbedder) request(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, want int) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("openai embedder is closed")
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: input,
	}
	if e.dims > 0 {
		params.Dimensions = openai.Int(int64(e.dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("openai returned %d embeddings, want %d", len(resp.Data), want)
	}

	out := make([][]float32, want)
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= want {
			return nil, fmt.Errorf("openai returned embedding index %d out of range", idx)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}

// Dimensions returns the requested embedding vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the configured model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available reports whether the embedder accepts requests. It does not
// verify the API key against the service.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder as closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
