package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartctx/sdch/internal/assemble"
	"github.com/smartctx/sdch/internal/budget"
	"github.com/smartctx/sdch/internal/cache"
	"github.com/smartctx/sdch/internal/chunk"
	"github.com/smartctx/sdch/internal/embed"
	"github.com/smartctx/sdch/internal/index"
	"github.com/smartctx/sdch/internal/ingest"
	"github.com/smartctx/sdch/internal/loader"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/tier"
	"github.com/smartctx/sdch/internal/trim"
)

// wordTokenizer counts whitespace-separated fields so tests run without
// a BPE vocabulary.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (wordTokenizer) Slice(text string, maxTokens int) string {
	fields := strings.Fields(text)
	if maxTokens <= 0 {
		return ""
	}
	if len(fields) <= maxTokens {
		return text
	}
	return strings.Join(fields[:maxTokens], " ")
}

func (wordTokenizer) SplitByTokens(text string, maxTokens int) []string {
	fields := strings.Fields(text)
	var out []string
	for len(fields) > 0 {
		n := maxTokens
		if n > len(fields) {
			n = len(fields)
		}
		out = append(out, strings.Join(fields[:n], " "))
		fields = fields[n:]
	}
	return out
}

// staticGateway embeds with the offline embedder.
type staticGateway struct {
	e *embed.StaticEmbedder
}

func (g *staticGateway) EmbedCorpus(ctx context.Context, texts []string) ([][]float32, embed.Embedder, error) {
	vecs, err := g.e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, err
	}
	return vecs, g.e, nil
}

func (g *staticGateway) QueryEmbedder(id string) (embed.Embedder, bool) {
	if id == g.e.ModelName() {
		return g.e, true
	}
	return nil, false
}

// newTestServer wires a full in-memory stack behind the HTTP surface.
// Word tokens, tier thresholds 10/20/40, document budget 100 tokens.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	files, err := store.NewFilenameIndex()
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })

	cls, err := tier.NewClassifier(10, 20, 40, nil)
	require.NoError(t, err)

	sp, err := chunk.NewSplitter(wordTokenizer{},
		chunk.WithTarget(8), chunk.WithOverlap(2), chunk.WithMaxTokens(12))
	require.NoError(t, err)

	artifacts, err := cache.New(nil)
	require.NoError(t, err)

	gw := &staticGateway{e: embed.NewStaticEmbedder()}
	builder := index.NewBuilder(gw, artifacts, st)

	svc, err := ingest.NewService(ingest.ServiceConfig{
		Store:      st,
		Filenames:  files,
		Loaders:    loader.NewRegistry(nil),
		Tokenizer:  wordTokenizer{},
		Classifier: cls,
		Splitter:   sp,
		Builder:    builder,
		UploadDir:  t.TempDir(),
		MaxBytes:   1 << 20,
	})
	require.NoError(t, err)

	allocator := budget.NewAllocator(120, 10, 5, 5)
	assembler, err := assemble.New(assemble.Config{
		Store:     st,
		Text:      svc,
		Artifacts: builder,
		Embedders: gw,
		Tokenizer: wordTokenizer{},
		Splitter:  sp,
		Trimmer:   trim.New(),
		Allocator: allocator,
	})
	require.NoError(t, err)

	srv, err := New(Config{
		Ingest:    svc,
		Store:     st,
		Filenames: files,
		Assembler: assembler,
		Allocator: allocator,
		Dependencies: []Dependency{
			{Name: "store", Check: func(ctx context.Context) error {
				_, err := st.CountDocuments(ctx)
				return err
			}},
		},
	})
	require.NoError(t, err)
	return srv
}

// upload posts a multipart file and returns the decoded response.
func upload(t *testing.T, srv *Server, filename, content string) (int, map[string]any) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec.Code, decoded
}

// postQuery posts a query request and returns the decoded response.
func postQuery(t *testing.T, srv *Server, body map[string]any) (int, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/query/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec.Code, decoded
}

// words generates a space-joined text of n distinct words.
func words(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("word%03d", i)
	}
	return strings.Join(out, " ")
}

// TestServer_UploadAndGet verifies the upload response shape and that
// the document is retrievable afterwards.
func TestServer_UploadAndGet(t *testing.T) {
	srv := newTestServer(t)

	code, res := upload(t, srv, "note.txt", "alpha beta gamma delta")
	require.Equal(t, http.StatusCreated, code)

	assert.NotEmpty(t, res["doc_id"])
	assert.Equal(t, "note.txt", res["filename"])
	assert.Equal(t, float64(4), res["token_count"])
	tierInfo := res["tier"].(map[string]any)
	assert.Equal(t, float64(1), tierInfo["tier"])
	assert.Equal(t, "Direct Injection", tierInfo["label"])
	assert.NotEmpty(t, tierInfo["color"])
	budgetInfo := res["budget"].(map[string]any)
	assert.Equal(t, float64(120), budgetInfo["total_window"])
	assert.Equal(t, "ready", res["status"])

	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+res["doc_id"].(string), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

// TestServer_UploadUnsupportedFormat verifies unknown extensions are a
// 400 with a structured error body.
func TestServer_UploadUnsupportedFormat(t *testing.T) {
	srv := newTestServer(t)

	code, res := upload(t, srv, "binary.exe", "content")
	require.Equal(t, http.StatusBadRequest, code)
	detail := res["error"].(map[string]any)
	assert.Contains(t, detail["code"], "UNSUPPORTED_FORMAT")
}

// TestServer_UploadMissingFile verifies a missing multipart field is a 400.
func TestServer_UploadMissingFile(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestServer_GetUnknownDocument verifies a 404 for unknown ids.
func TestServer_GetUnknownDocument(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestServer_List verifies listing returns uploaded documents.
func TestServer_List(t *testing.T) {
	srv := newTestServer(t)
	upload(t, srv, "a.txt", "one two three")
	upload(t, srv, "b.txt", "four five six")

	req := httptest.NewRequest(http.MethodGet, "/api/documents/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, float64(2), res["count"])
}

// TestServer_SearchByFilename verifies the filename search endpoint.
func TestServer_SearchByFilename(t *testing.T) {
	srv := newTestServer(t)
	upload(t, srv, "quarterly-report.txt", "revenue went up")
	upload(t, srv, "meeting-notes.txt", "we discussed things")

	req := httptest.NewRequest(http.MethodGet, "/api/documents/search?q=quarterly", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, float64(1), res["count"])
	docs := res["documents"].([]any)
	assert.Equal(t, "quarterly-report.txt", docs[0].(map[string]any)["filename"])
}

// TestServer_QueryTier1 verifies a direct-injection query round-trips
// the uploaded text.
func TestServer_QueryTier1(t *testing.T) {
	srv := newTestServer(t)
	text := "Hello world. This is a test."
	_, doc := upload(t, srv, "tiny.txt", text)

	code, res := postQuery(t, srv, map[string]any{
		"doc_id": doc["doc_id"], "query": "test",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, text, res["assembled_context"])
	assert.Empty(t, res["chunks_used"])
	assert.Equal(t, float64(1), res["tier"])
	assert.Equal(t, "Full document injected directly.", res["strategy_notes"])
}

// TestServer_QueryChunkTier verifies a chunk-tier document returns a
// ranked selection with scores and reading-order indices.
func TestServer_QueryChunkTier(t *testing.T) {
	srv := newTestServer(t)
	text := words(25) + " zeppelin migration pattern " + words(5)
	_, doc := upload(t, srv, "report.txt", text)
	require.Equal(t, float64(3), doc["tier"].(map[string]any)["tier"])

	code, res := postQuery(t, srv, map[string]any{
		"doc_id": doc["doc_id"], "query": "zeppelin migration",
	})
	require.Equal(t, http.StatusOK, code)
	chunks := res["chunks_used"].([]any)
	require.NotEmpty(t, chunks)
	assert.Contains(t, res["assembled_context"], "zeppelin")

	prev := -1
	for _, raw := range chunks {
		cu := raw.(map[string]any)
		idx := int(cu["index"].(float64))
		assert.Greater(t, idx, prev)
		prev = idx
	}
}

// TestServer_QueryRetrievalTier verifies a tier-4 document is served
// through the vector index built on demand.
func TestServer_QueryRetrievalTier(t *testing.T) {
	srv := newTestServer(t)
	text := words(60) + " zeppelin migration pattern"
	_, doc := upload(t, srv, "book.txt", text)
	require.Equal(t, float64(4), doc["tier"].(map[string]any)["tier"])

	code, res := postQuery(t, srv, map[string]any{
		"doc_id": doc["doc_id"], "query": "zeppelin migration pattern",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, res["strategy_notes"], "Vector similarity")
	require.NotEmpty(t, res["chunks_used"])
}

// TestServer_QueryEmpty verifies an empty query is a 422.
func TestServer_QueryEmpty(t *testing.T) {
	srv := newTestServer(t)
	_, doc := upload(t, srv, "tiny.txt", "alpha beta")

	code, _ := postQuery(t, srv, map[string]any{
		"doc_id": doc["doc_id"], "query": "   ",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

// TestServer_QueryUnknownDocument verifies a 404 for unknown doc ids.
func TestServer_QueryUnknownDocument(t *testing.T) {
	srv := newTestServer(t)

	code, _ := postQuery(t, srv, map[string]any{
		"doc_id": "missing", "query": "anything",
	})
	assert.Equal(t, http.StatusNotFound, code)
}

// TestServer_DeleteCascades verifies deletion removes the document and
// later lookups 404.
func TestServer_DeleteCascades(t *testing.T) {
	srv := newTestServer(t)
	_, doc := upload(t, srv, "gone.txt", "alpha beta gamma")
	id := doc["doc_id"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/"+id, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/documents/"+id, nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestServer_Health verifies the health endpoint reports dependency
// checks and metrics.
func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)
	_, doc := upload(t, srv, "tiny.txt", "alpha beta")
	postQuery(t, srv, map[string]any{"doc_id": doc["doc_id"], "query": "alpha"})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, ServiceName, res["service"])
	assert.Equal(t, "ok", res["checks"].(map[string]any)["store"])
	metrics := res["metrics"].(map[string]any)
	assert.Equal(t, float64(1), metrics["queries"])
}
