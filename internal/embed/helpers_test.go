package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

// fakeVec derives a deterministic vector for text so tests can assert
// result ordering against expected values.
func fakeVec(text string, dims int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	vec := make([]float32, dims)
	vec[0] = float32(h.Sum32()%1000) + 1
	return vec
}

// fakeEmbedder is a scriptable Embedder for tests. It records every
// batch it receives and can fail a configured number of calls before
// succeeding.
type fakeEmbedder struct {
	mu       sync.Mutex
	name     string
	dims     int
	failN    int
	failWith error
	batches  [][]string
	closed   bool
}

var _ Embedder = (*fakeEmbedder)(nil)

func newFakeEmbedder(name string, dims int) *fakeEmbedder {
	return &fakeEmbedder{name: name, dims: dims}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failN > 0 {
		f.failN--
		if f.failWith != nil {
			return nil, f.failWith
		}
		return nil, errors.New("fake embedder failure")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = fakeVec(text, f.dims)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) ModelName() string { return f.name }

func (f *fakeEmbedder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEmbedder) Available(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeEmbedder) batchLens() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	lens := make([]int, len(f.batches))
	for i, b := range f.batches {
		lens[i] = len(b)
	}
	return lens
}

func (f *fakeEmbedder) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
