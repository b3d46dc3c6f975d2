package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDoc(id, filename string) *Document {
	return &Document{
		ID:         id,
		Filename:   filename,
		FileSize:   2048,
		MimeType:   "text/plain",
		TokenCount: 900,
		Tier:       1,
		TierLabel:  "small",
		Status:     StatusReady,
	}
}

// Verify a document round-trips through create and get.
func TestStore_CreateGetDocument(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "notes.txt")
	doc.PageCount = 3
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", got.Filename)
	assert.Equal(t, int64(2048), got.FileSize)
	assert.Equal(t, "text/plain", got.MimeType)
	assert.Equal(t, 900, got.TokenCount)
	assert.Equal(t, 1, got.Tier)
	assert.Equal(t, "small", got.TierLabel)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, StatusReady, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

// Verify an unknown id maps to the document-not-found error code.
func TestStore_GetDocument_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, sdcherrors.ErrCodeDocumentNotFound, sdcherrors.CodeOf(err))
}

// Verify listing is newest-first and respects limit and offset.
func TestStore_ListDocuments_OrderAndPaging(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, d := range []struct {
		id  string
		age time.Duration
	}{
		{"doc-b", 1 * time.Hour},
		{"doc-a", 2 * time.Hour},
		{"doc-c", 0},
	} {
		doc := testDoc(d.id, d.id+".txt")
		doc.CreatedAt = base.Add(-d.age)
		require.NoError(t, s.CreateDocument(ctx, doc))
	}

	all, err := s.ListDocuments(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "doc-c", all[0].ID)
	assert.Equal(t, "doc-b", all[1].ID)
	assert.Equal(t, "doc-a", all[2].ID)

	page, err := s.ListDocuments(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "doc-c", page[0].ID)

	rest, err := s.ListDocuments(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "doc-a", rest[0].ID)

	count, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

// Verify status transitions, including error capture and clearing.
func TestStore_SetStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "a.txt")
	doc.Status = StatusPending
	require.NoError(t, s.CreateDocument(ctx, doc))

	require.NoError(t, s.SetStatus(ctx, "doc-1", StatusFailed, "tokenizer exploded"))
	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "tokenizer exploded", got.Error)

	require.NoError(t, s.SetStatus(ctx, "doc-1", StatusReady, "stale message"))
	got, err = s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Empty(t, got.Error)

	err = s.SetStatus(ctx, "missing", StatusReady, "")
	assert.Equal(t, sdcherrors.ErrCodeDocumentNotFound, sdcherrors.CodeOf(err))
}

// Verify chunk replacement swaps the full set atomically.
func TestStore_ReplaceChunks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, testDoc("doc-1", "a.txt")))

	first := []DocumentChunk{
		{ChunkIndex: 0, Content: "old zero", TokenCount: 2, StartChar: 0, EndChar: 8},
		{ChunkIndex: 1, Content: "old one", TokenCount: 2, StartChar: 9, EndChar: 16},
		{ChunkIndex: 2, Content: "old two", TokenCount: 2, StartChar: 17, EndChar: 24},
	}
	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", first))

	second := []DocumentChunk{
		{ChunkIndex: 0, Content: "new zero", TokenCount: 2, StartChar: 0, EndChar: 8},
		{ChunkIndex: 1, Content: "new one", TokenCount: 2, StartChar: 9, EndChar: 16},
	}
	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", second))

	chunks, err := s.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "new zero", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 9, chunks[1].StartChar)
	assert.Equal(t, 16, chunks[1].EndChar)
	assert.Equal(t, "doc-1", chunks[1].DocumentID)
}

// Verify deleting a document also deletes its chunks.
func TestStore_DeleteDocument_CascadesChunks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, testDoc("doc-1", "a.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", []DocumentChunk{
		{ChunkIndex: 0, Content: "body", TokenCount: 1},
	}))

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	_, err := s.GetDocument(ctx, "doc-1")
	assert.Equal(t, sdcherrors.ErrCodeDocumentNotFound, sdcherrors.CodeOf(err))

	chunks, err := s.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	err = s.DeleteDocument(ctx, "doc-1")
	assert.Equal(t, sdcherrors.ErrCodeDocumentNotFound, sdcherrors.CodeOf(err))
}

// Verify the embedding flag flips for all of a document's chunks.
func TestStore_MarkChunksEmbedded(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, testDoc("doc-1", "a.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", []DocumentChunk{
		{ChunkIndex: 0, Content: "zero", TokenCount: 1},
		{ChunkIndex: 1, Content: "one", TokenCount: 1},
	}))

	require.NoError(t, s.MarkChunksEmbedded(ctx, "doc-1", true))
	chunks, err := s.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	for _, c := range chunks {
		assert.True(t, c.EmbeddingCached)
	}

	require.NoError(t, s.MarkChunksEmbedded(ctx, "doc-1", false))
	chunks, err = s.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	for _, c := range chunks {
		assert.False(t, c.EmbeddingCached)
	}
}
