package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// FilenameMatch is one hit from a filename search.
type FilenameMatch struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// FilenameIndex is an in-memory full-text index over document
// filenames. It is rebuilt from the store at startup and kept in sync
// as documents come and go.
type FilenameIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

type filenameDoc struct {
	Filename string `json:"filename"`
}

// NewFilenameIndex creates an empty in-memory filename index.
func NewFilenameIndex() (*FilenameIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating filename index: %w", err)
	}
	return &FilenameIndex{index: idx}, nil
}

// Load bulk-indexes existing documents.
func (f *FilenameIndex) Load(docs []Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("filename index is closed")
	}

	batch := f.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, filenameDoc{Filename: doc.Filename}); err != nil {
			return fmt.Errorf("indexing filename for %s: %w", doc.ID, err)
		}
	}
	if err := f.index.Batch(batch); err != nil {
		return fmt.Errorf("executing filename batch: %w", err)
	}
	return nil
}

// Add indexes one document's filename.
func (f *FilenameIndex) Add(docID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("filename index is closed")
	}
	if err := f.index.Index(docID, filenameDoc{Filename: filename}); err != nil {
		return fmt.Errorf("indexing filename for %s: %w", docID, err)
	}
	return nil
}

// Remove drops a document from the index.
func (f *FilenameIndex) Remove(docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("filename index is closed")
	}
	if err := f.index.Delete(docID); err != nil {
		return fmt.Errorf("removing %s from filename index: %w", docID, err)
	}
	return nil
}

// Search returns documents whose filename matches the query, best
// first. Whole words match via the analyzer and partial words match by
// prefix.
func (f *FilenameIndex) Search(ctx context.Context, queryStr string, limit int) ([]FilenameMatch, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, fmt.Errorf("filename index is closed")
	}

	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	match := bleve.NewMatchQuery(queryStr)
	match.SetField("filename")
	// Prefix queries bypass the analyzer, so lowercase by hand.
	prefix := bleve.NewPrefixQuery(strings.ToLower(queryStr))
	prefix.SetField("filename")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(match, prefix))
	req.Size = limit

	result, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("filename search failed: %w", err)
	}

	matches := make([]FilenameMatch, 0, len(result.Hits))
	for _, hit := range result.Hits {
		matches = append(matches, FilenameMatch{DocID: hit.ID, Score: hit.Score})
	}
	return matches, nil
}

// Close releases the index.
func (f *FilenameIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.index.Close()
}
