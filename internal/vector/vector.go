// Package vector implements exact nearest-neighbor search over a flat
// matrix of L2-normalized float32 embeddings, plus the binary artifact
// codec that carries an index between processes.
//
// Search scans every row. Corpora are at most a few thousand chunks per
// document, and an exhaustive scan keeps retrieval fully reproducible
// where approximate structures would not be.
package vector

import (
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch indicates a vector of the wrong width for the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Result pairs a row index with its cosine similarity to the query.
type Result struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Index is an exact flat vector index. Rows are L2-normalized on insert,
// so dot product equals cosine similarity. An Index is immutable once
// built; concurrent Search calls are safe.
type Index struct {
	dim  int
	rows int
	data []float32 // row-major, rows*dim entries
}

// New creates an empty index of the given dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Dimensions returns the vector width.
func (ix *Index) Dimensions() int {
	return ix.dim
}

// Len returns the number of rows.
func (ix *Index) Len() int {
	return ix.rows
}

// Add appends a vector, normalizing it to unit length.
func (ix *Index) Add(vec []float32) error {
	if len(vec) != ix.dim {
		return ErrDimensionMismatch{Expected: ix.dim, Got: len(vec)}
	}
	row := make([]float32, len(vec))
	copy(row, vec)
	normalizeInPlace(row)
	ix.data = append(ix.data, row...)
	ix.rows++
	return nil
}

// AddBatch appends vectors in order.
func (ix *Index) AddBatch(vecs [][]float32) error {
	for i, v := range vecs {
		if err := ix.Add(v); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}
	return nil
}

// Search returns the k most similar rows to query, sorted by descending
// score with ties broken by ascending row index. The query is normalized
// before scoring, so scores land in [-1, 1].
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, ErrDimensionMismatch{Expected: ix.dim, Got: len(query)}
	}
	if ix.rows == 0 || k <= 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	results := make([]Result, ix.rows)
	for i := 0; i < ix.rows; i++ {
		row := ix.data[i*ix.dim : (i+1)*ix.dim]
		results[i] = Result{Index: i, Score: dot(q, row)}
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Index < results[b].Index
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalizeInPlace scales v to unit length. Zero vectors are left as-is.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
