package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFilenameIndex(t *testing.T) *FilenameIndex {
	t.Helper()
	idx, err := NewFilenameIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

// Verify whole words in a filename are matched.
func TestFilenameIndex_Search_MatchesWords(t *testing.T) {
	idx := testFilenameIndex(t)
	require.NoError(t, idx.Add("doc-1", "q3-report-final.pdf"))
	require.NoError(t, idx.Add("doc-2", "meeting notes.md"))

	ctx := context.Background()

	hits, err := idx.Search(ctx, "report", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = idx.Search(ctx, "meeting", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-2", hits[0].DocID)
}

// Verify partial words match by prefix.
func TestFilenameIndex_Search_PrefixFallback(t *testing.T) {
	idx := testFilenameIndex(t)
	require.NoError(t, idx.Add("doc-1", "q3-report-final.pdf"))

	hits, err := idx.Search(context.Background(), "rep", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
}

// Verify a blank query returns nothing and no match returns empty.
func TestFilenameIndex_Search_EmptyAndNoMatch(t *testing.T) {
	idx := testFilenameIndex(t)
	require.NoError(t, idx.Add("doc-1", "q3-report-final.pdf"))

	ctx := context.Background()

	hits, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "zzzqqq", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// Verify bulk loading indexes every document.
func TestFilenameIndex_Load(t *testing.T) {
	idx := testFilenameIndex(t)
	require.NoError(t, idx.Load([]Document{
		{ID: "doc-1", Filename: "alpha-summary.txt"},
		{ID: "doc-2", Filename: "beta-summary.txt"},
	}))

	hits, err := idx.Search(context.Background(), "summary", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

// Verify removed documents stop matching and a closed index errors.
func TestFilenameIndex_RemoveAndClose(t *testing.T) {
	idx, err := NewFilenameIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Add("doc-1", "q3-report-final.pdf"))

	require.NoError(t, idx.Remove("doc-1"))
	hits, err := idx.Search(context.Background(), "report", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
	err = idx.Add("doc-2", "later.txt")
	assert.Error(t, err)
}
