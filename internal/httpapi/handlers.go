package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartctx/sdch/internal/budget"
	sdcherrors "github.com/smartctx/sdch/internal/errors"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/tier"
	"github.com/smartctx/sdch/pkg/version"
)

// documentResponse is the wire shape for one document, shared by the
// upload, get, list, and search endpoints.
type documentResponse struct {
	DocID      string        `json:"doc_id"`
	Filename   string        `json:"filename"`
	FileSize   int64         `json:"file_size"`
	MimeType   string        `json:"mime_type,omitempty"`
	TokenCount int           `json:"token_count"`
	Tier       tier.Info     `json:"tier"`
	Budget     budget.Report `json:"budget"`
	PageCount  int           `json:"page_count,omitempty"`
	RowCount   int           `json:"row_count,omitempty"`
	Status     string        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (s *Server) documentResponse(doc *store.Document) documentResponse {
	return documentResponse{
		DocID:      doc.ID,
		Filename:   doc.Filename,
		FileSize:   doc.FileSize,
		MimeType:   doc.MimeType,
		TokenCount: doc.TokenCount,
		Tier:       tier.Tier(doc.Tier).Info(),
		Budget:     s.allocator.Report(s.allocator.Plan(doc.TokenCount)),
		PageCount:  doc.PageCount,
		RowCount:   doc.RowCount,
		Status:     doc.Status,
		CreatedAt:  doc.CreatedAt,
	}
}

// handleUpload ingests one multipart file upload.
func (s *Server) handleUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		s.writeError(c, sdcherrors.Newf(sdcherrors.ErrCodeInvalidInput, "multipart field %q is required", "file"))
		return
	}
	if header.Size > s.ingest.MaxBytes() {
		s.writeError(c, sdcherrors.FileTooLarge(header.Size, s.ingest.MaxBytes()))
		return
	}

	f, err := header.Open()
	if err != nil {
		s.writeError(c, sdcherrors.Internal(err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.ingest.MaxBytes()+1))
	if err != nil {
		s.writeError(c, sdcherrors.Internal(err))
		return
	}
	if int64(len(data)) > s.ingest.MaxBytes() {
		s.writeError(c, sdcherrors.FileTooLarge(int64(len(data)), s.ingest.MaxBytes()))
		return
	}

	doc, err := s.ingest.Ingest(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.documentResponse(doc))
}

// handleGet returns one document by id.
func (s *Server) handleGet(c *gin.Context) {
	doc, err := s.store.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.documentResponse(doc))
}

// handleList returns documents newest first, capped at DefaultListLimit.
func (s *Server) handleList(c *gin.Context) {
	docs, err := s.store.ListDocuments(c.Request.Context(), DefaultListLimit, 0)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]documentResponse, len(docs))
	for i := range docs {
		out[i] = s.documentResponse(&docs[i])
	}
	c.JSON(http.StatusOK, gin.H{"documents": out, "count": len(out)})
}

// handleSearch returns documents whose filename matches the q parameter.
func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		s.writeError(c, sdcherrors.Newf(sdcherrors.ErrCodeInvalidInput, "query parameter %q is required", "q"))
		return
	}
	if s.filenames == nil {
		c.JSON(http.StatusOK, gin.H{"documents": []documentResponse{}, "count": 0})
		return
	}

	matches, err := s.filenames.Search(c.Request.Context(), query, DefaultListLimit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]documentResponse, 0, len(matches))
	for _, m := range matches {
		doc, err := s.store.GetDocument(c.Request.Context(), m.DocID)
		if err != nil {
			// The index can briefly outlive a deleted record.
			continue
		}
		out = append(out, s.documentResponse(doc))
	}
	c.JSON(http.StatusOK, gin.H{"documents": out, "count": len(out)})
}

// handleDelete removes a document and everything derived from it.
func (s *Server) handleDelete(c *gin.Context) {
	if err := s.ingest.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// queryRequest is the body of POST /api/query/.
type queryRequest struct {
	DocID string `json:"doc_id" binding:"required"`
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// handleQuery assembles context for one query.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, sdcherrors.Newf(sdcherrors.ErrCodeInvalidInput, "invalid query request: %v", err))
		return
	}

	start := time.Now()
	res, err := s.assembler.Assemble(c.Request.Context(), req.DocID, req.Query, req.TopK)
	if err != nil {
		s.metrics.RecordFailure(time.Since(start))
		s.writeError(c, err)
		return
	}
	s.metrics.RecordQuery(res.Tier, res.TokenCount, time.Since(start))
	c.JSON(http.StatusOK, res)
}

// handleHealth reports service status and dependency checks.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(s.deps))
	for _, dep := range s.deps {
		if err := dep.Check(ctx); err != nil {
			checks[dep.Name] = err.Error()
			status = "degraded"
			continue
		}
		checks[dep.Name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": ServiceName,
		"version": version.Short(),
		"checks":  checks,
		"metrics": s.metrics.Snapshot(),
	})
}
