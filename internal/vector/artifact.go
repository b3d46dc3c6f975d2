package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/smartctx/sdch/internal/rank"
)

const (
	artifactMagic   = "SDCX"
	artifactVersion = 1

	// Sanity bounds for decoding untrusted blobs.
	maxDim  = 1 << 16
	maxRows = 1 << 24
)

// Artifact bundles everything retrieval needs for one document: the
// vector index, the BM25 statistics, and per-chunk token counts, tagged
// with the embedder that produced the matrix so query vectors can be
// validated against it.
type Artifact struct {
	EmbedderID  string
	Index       *Index
	Stats       *rank.Stats
	ChunkTokens []int
}

// Encode serializes the artifact:
//
//	magic "SDCX" | version | embedder id | dim | rows | matrix | token counts | BM25 stats
//
// Integers are little-endian; BM25 statistics are gob-encoded at the tail.
func (a *Artifact) Encode() ([]byte, error) {
	if a.Index == nil {
		return nil, fmt.Errorf("artifact has no index")
	}
	if a.Stats == nil {
		return nil, fmt.Errorf("artifact has no ranking stats")
	}
	if len(a.ChunkTokens) != a.Index.rows {
		return nil, fmt.Errorf("token counts (%d) do not match index rows (%d)", len(a.ChunkTokens), a.Index.rows)
	}
	id := []byte(a.EmbedderID)
	if len(id) > 255 {
		return nil, fmt.Errorf("embedder id too long: %d bytes", len(id))
	}

	var buf bytes.Buffer
	buf.WriteString(artifactMagic)
	buf.WriteByte(artifactVersion)
	buf.WriteByte(byte(len(id)))
	buf.Write(id)

	if err := binary.Write(&buf, binary.LittleEndian, uint32(a.Index.dim)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(a.Index.rows)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, a.Index.data); err != nil {
		return nil, err
	}

	tokens := make([]uint32, len(a.ChunkTokens))
	for i, n := range a.ChunkTokens {
		tokens[i] = uint32(n)
	}
	if err := binary.Write(&buf, binary.LittleEndian, tokens); err != nil {
		return nil, err
	}

	if err := gob.NewEncoder(&buf).Encode(a.Stats); err != nil {
		return nil, fmt.Errorf("encode ranking stats: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs an artifact from bytes. Short or corrupt input
// returns an error; callers treat that as a cache miss and rebuild.
func Decode(data []byte) (*Artifact, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, len(artifactMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("artifact too short: %w", err)
	}
	if string(magic) != artifactMagic {
		return nil, fmt.Errorf("bad artifact magic %q", magic)
	}

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("artifact truncated at version: %w", err)
	}
	if version != artifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", version)
	}

	idLen, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("artifact truncated at embedder id: %w", err)
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return nil, fmt.Errorf("artifact truncated at embedder id: %w", err)
	}

	var dim, rows uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("artifact truncated at dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("artifact truncated at row count: %w", err)
	}
	if dim == 0 || dim > maxDim {
		return nil, fmt.Errorf("implausible dimension %d", dim)
	}
	if rows > maxRows {
		return nil, fmt.Errorf("implausible row count %d", rows)
	}

	matrix := make([]float32, int(dim)*int(rows))
	if err := binary.Read(r, binary.LittleEndian, matrix); err != nil {
		return nil, fmt.Errorf("artifact truncated at matrix: %w", err)
	}

	tokens := make([]uint32, rows)
	if err := binary.Read(r, binary.LittleEndian, tokens); err != nil {
		return nil, fmt.Errorf("artifact truncated at token counts: %w", err)
	}

	var stats rank.Stats
	if err := gob.NewDecoder(r).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode ranking stats: %w", err)
	}

	chunkTokens := make([]int, rows)
	for i, n := range tokens {
		chunkTokens[i] = int(n)
	}
	return &Artifact{
		EmbedderID: string(id),
		Index: &Index{
			dim:  int(dim),
			rows: int(rows),
			data: matrix,
		},
		Stats:       &stats,
		ChunkTokens: chunkTokens,
	}, nil
}
