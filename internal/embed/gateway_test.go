package embed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

func fastGatewayRetry() sdcherrors.RetryConfig {
	return sdcherrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
		ShouldRetry:  IsRetryableError,
	}
}

// Verify an API key turns on the primary embedder with overrides
// applied, while no key leaves the gateway in offline mode.
func TestNewGateway_PrimaryConfiguration(t *testing.T) {
	offline := NewGateway(GatewayConfig{})
	assert.Nil(t, offline.Primary())
	assert.Equal(t, "static", offline.Fallback().ModelName())

	online := NewGateway(GatewayConfig{
		APIKey:     "sk-test",
		Model:      "text-embedding-3-large",
		Dimensions: 256,
	})
	require.NotNil(t, online.Primary())
	assert.Equal(t, "text-embedding-3-large", online.Primary().ModelName())
	assert.Equal(t, 256, online.Primary().Dimensions())
}

// Verify offline mode embeds the corpus with the static fallback.
func TestGateway_EmbedCorpus_OfflineUsesFallback(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	defer g.Close()

	texts := []string{"first chunk about databases", "second chunk about caching"}
	vecs, embedder, err := g.EmbedCorpus(context.Background(), texts)

	require.NoError(t, err)
	assert.Same(t, g.Fallback(), embedder)
	require.Len(t, vecs, 2)
	for i, vec := range vecs {
		assert.Len(t, vec, StaticDimensions, "vector %d", i)
	}
}

// Verify the corpus is split into capped batches and results come back
// in input order.
func TestGateway_EmbedCorpus_Batching(t *testing.T) {
	g := NewGateway(GatewayConfig{BatchSize: 100, Concurrency: 1})
	primary := newFakeEmbedder("prime", 4)
	g.primary = primary

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %03d", i)
	}

	vecs, embedder, err := g.EmbedCorpus(context.Background(), texts)
	require.NoError(t, err)
	assert.Same(t, primary, embedder)
	assert.Equal(t, []int{100, 100, 50}, primary.batchLens())

	require.Len(t, vecs, 250)
	for i, text := range texts {
		assert.Equal(t, fakeVec(text, 4), vecs[i], "vector %d", i)
	}
}

// Verify transient API failures are retried until the batch succeeds.
func TestGateway_EmbedCorpus_RetriesTransientFailures(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	primary := newFakeEmbedder("prime", 4)
	primary.failN = 2
	primary.failWith = &openai.Error{StatusCode: 500}
	g.primary = primary
	g.retry = fastGatewayRetry()

	vecs, embedder, err := g.EmbedCorpus(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Same(t, primary, embedder)
	assert.Equal(t, 3, primary.callCount())
	require.Len(t, vecs, 3)
}

// Verify the gateway degrades to the fallback after the primary
// exhausts its retries.
func TestGateway_EmbedCorpus_FallsBackAfterExhaustion(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	primary := newFakeEmbedder("prime", 4)
	primary.failN = 10
	primary.failWith = &openai.Error{StatusCode: 503}
	g.primary = primary
	g.retry = fastGatewayRetry()

	vecs, embedder, err := g.EmbedCorpus(context.Background(), []string{"x", "y"})

	require.NoError(t, err)
	assert.Same(t, g.Fallback(), embedder)
	assert.Equal(t, 3, primary.callCount())
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], StaticDimensions)
}

// Verify a permanent API error skips retries before falling back.
func TestGateway_EmbedCorpus_PermanentErrorFailsFast(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	primary := newFakeEmbedder("prime", 4)
	primary.failN = 10
	primary.failWith = &openai.Error{StatusCode: 400}
	g.primary = primary
	g.retry = fastGatewayRetry()

	_, embedder, err := g.EmbedCorpus(context.Background(), []string{"x"})

	require.NoError(t, err)
	assert.Same(t, g.Fallback(), embedder)
	assert.Equal(t, 1, primary.callCount())
}

// Verify caller cancellation aborts without falling back.
func TestGateway_EmbedCorpus_Cancelled(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	primary := newFakeEmbedder("prime", 4)
	g.primary = primary
	g.retry = fastGatewayRetry()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, embedder, err := g.EmbedCorpus(ctx, []string{"x"})

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, embedder)
	assert.Equal(t, 0, primary.callCount())
}

// Verify an empty corpus is a no-op reporting the active embedder.
func TestGateway_EmbedCorpus_Empty(t *testing.T) {
	g := NewGateway(GatewayConfig{})

	vecs, embedder, err := g.EmbedCorpus(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Same(t, g.Fallback(), embedder)
}

// Verify embedder lookup by recorded model name.
func TestGateway_ByName(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	primary := newFakeEmbedder("prime", 4)
	g.primary = primary

	found, ok := g.ByName("prime")
	require.True(t, ok)
	assert.Same(t, primary, found)

	found, ok = g.ByName("static")
	require.True(t, ok)
	assert.Same(t, g.Fallback(), found)

	_, ok = g.ByName("unknown-model")
	assert.False(t, ok)
}

// Verify query embedders are cached wrappers reused across calls.
func TestGateway_QueryEmbedder(t *testing.T) {
	g := NewGateway(GatewayConfig{})

	first, ok := g.QueryEmbedder("static")
	require.True(t, ok)
	assert.Equal(t, "static", first.ModelName())

	second, ok := g.QueryEmbedder("static")
	require.True(t, ok)
	assert.Same(t, first, second)

	_, ok = g.QueryEmbedder("unknown-model")
	assert.False(t, ok)
}
