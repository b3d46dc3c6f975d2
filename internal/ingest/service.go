// Package ingest runs the document intake pipeline: validate, spool the
// raw bytes, extract canonical text, count tokens, classify into a tier,
// persist the record, and chunk the text for the retrieval tiers.
//
// Ingestion is synchronous: when Ingest returns, the document is ready
// (or recorded as failed). Only artifact prewarming runs in the
// background.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartctx/sdch/internal/chunk"
	sdcherrors "github.com/smartctx/sdch/internal/errors"
	"github.com/smartctx/sdch/internal/index"
	"github.com/smartctx/sdch/internal/loader"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/tier"
)

// DefaultMaxBytes caps raw uploads at 50 MiB.
const DefaultMaxBytes = 50 << 20

// prewarmTimeout bounds a background artifact build kicked off after
// ingesting a retrieval-tier document.
const prewarmTimeout = 2 * time.Minute

// Tokenizer counts tokens for tier classification.
type Tokenizer interface {
	Count(text string) int
}

// Splitter cuts canonical text into chunks for the retrieval tiers.
type Splitter interface {
	Split(ctx context.Context, text string) ([]chunk.Chunk, error)
}

// ServiceConfig carries the dependencies for a Service. Store, Loaders,
// Tokenizer, Classifier, Splitter, and UploadDir are required.
type ServiceConfig struct {
	Store      *store.Store
	Filenames  *store.FilenameIndex
	Loaders    *loader.Registry
	Tokenizer  Tokenizer
	Classifier *tier.Classifier
	Splitter   Splitter

	// Builder, when set, serves artifact invalidation on delete and
	// optional prewarming after ingest.
	Builder *index.Builder

	// UploadDir is the spool directory for raw uploads.
	UploadDir string
	// MaxBytes caps the raw upload size. Zero means DefaultMaxBytes.
	MaxBytes int64
	// Prewarm builds the vector artifact in the background right after a
	// retrieval-tier document is ingested, instead of on first query.
	Prewarm bool

	Logger *slog.Logger
}

// Service ingests and deletes documents.
type Service struct {
	store      *store.Store
	filenames  *store.FilenameIndex
	loaders    *loader.Registry
	tokenizer  Tokenizer
	classifier *tier.Classifier
	splitter   Splitter
	builder    *index.Builder
	uploadDir  string
	maxBytes   int64
	prewarm    bool
	lock       *DirLock
	logger     *slog.Logger
}

// NewService creates a Service from cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Loaders == nil {
		return nil, fmt.Errorf("loader registry is required")
	}
	if cfg.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      cfg.Store,
		filenames:  cfg.Filenames,
		loaders:    cfg.Loaders,
		tokenizer:  cfg.Tokenizer,
		classifier: cfg.Classifier,
		splitter:   cfg.Splitter,
		builder:    cfg.Builder,
		uploadDir:  cfg.UploadDir,
		maxBytes:   maxBytes,
		prewarm:    cfg.Prewarm,
		lock:       NewDirLock(cfg.UploadDir),
		logger:     logger,
	}, nil
}

// MaxBytes returns the raw upload size cap.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Supported returns the accepted file extensions.
func (s *Service) Supported() []string {
	return s.loaders.Supported()
}

// Ingest runs the full intake pipeline on one upload. The returned
// document is in the ready state. Validation failures reject the upload
// before anything is persisted; failures past that point leave a failed
// document record behind.
func (s *Service) Ingest(ctx context.Context, filename, mimeHint string, data []byte) (*store.Document, error) {
	start := time.Now()

	// Uploads name files, they do not pick paths.
	name := filepath.Base(strings.TrimSpace(filename))
	if !s.loaders.Supports(name) {
		return nil, sdcherrors.UnsupportedFormat(strings.ToLower(filepath.Ext(name)))
	}
	if int64(len(data)) > s.maxBytes {
		return nil, sdcherrors.FileTooLarge(int64(len(data)), s.maxBytes)
	}

	docID := uuid.NewString()
	path, err := s.spool(docID, name, data)
	if err != nil {
		return nil, sdcherrors.Internal(err)
	}

	doc := &store.Document{
		ID:       docID,
		Filename: name,
		FileSize: int64(len(data)),
		MimeType: mimeHint,
		FilePath: path,
		Status:   store.StatusProcessing,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		s.discard(path)
		return nil, err
	}

	res, err := s.loaders.Load(ctx, name, mimeHint, data)
	if err != nil {
		s.fail(ctx, docID, err)
		return nil, err
	}

	textPath, err := s.spoolText(docID, res.Text)
	if err != nil {
		s.fail(ctx, docID, err)
		return nil, sdcherrors.Internal(err)
	}

	tokens := s.tokenizer.Count(res.Text)
	t := s.classifier.Classify(tokens)

	doc.TextPath = textPath
	doc.MimeType = res.MIMEType
	doc.TokenCount = tokens
	doc.Tier = int(t)
	doc.TierLabel = t.Label()
	if res.PageCount != nil {
		doc.PageCount = *res.PageCount
	}
	if res.RowCount != nil {
		doc.RowCount = *res.RowCount
	}

	chunkCount := 0
	if t >= tier.TierChunk {
		chunks, err := s.splitter.Split(ctx, res.Text)
		if err != nil {
			s.fail(ctx, docID, err)
			return nil, fmt.Errorf("failed to chunk document %s: %w", docID, err)
		}
		rows := make([]store.DocumentChunk, len(chunks))
		for i, c := range chunks {
			rows[i] = store.DocumentChunk{
				ChunkIndex: c.Index,
				Content:    c.Text,
				TokenCount: c.TokenCount,
				Section:    c.Section,
				StartChar:  c.StartChar,
				EndChar:    c.EndChar,
			}
		}
		if err := s.store.ReplaceChunks(ctx, docID, rows); err != nil {
			s.fail(ctx, docID, err)
			return nil, err
		}
		chunkCount = len(rows)
	}

	doc.Status = store.StatusReady
	doc.Error = ""
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if s.filenames != nil {
		if err := s.filenames.Add(docID, name); err != nil {
			s.logger.Warn("filename_index_failed", "doc_id", docID, "error", err)
		}
	}
	if s.prewarm && s.builder != nil && t == tier.TierRetrieve {
		go s.prewarmArtifact(docID)
	}

	s.logger.Info("document_ingested",
		"doc_id", docID,
		"filename", name,
		"tokens", tokens,
		"tier", int(t),
		"chunks", chunkCount,
		"duration_ms", time.Since(start).Milliseconds())
	return doc, nil
}

// IngestFile ingests a document from the local filesystem. Used by the
// ingest CLI and the inbox watcher.
func (s *Service) IngestFile(ctx context.Context, path string) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Ingest(ctx, filepath.Base(path), "", data)
}

// Delete removes a document: its record, chunks, cached artifact,
// filename index entry, and spooled file.
func (s *Service) Delete(ctx context.Context, docID string) error {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if s.builder != nil {
		s.builder.Invalidate(ctx, docID)
	}
	if s.filenames != nil {
		if err := s.filenames.Remove(docID); err != nil {
			s.logger.Warn("filename_index_failed", "doc_id", docID, "error", err)
		}
	}
	if doc.FilePath != "" {
		s.discard(doc.FilePath)
	}
	if doc.TextPath != "" {
		s.discard(doc.TextPath)
	}
	s.logger.Info("document_deleted", "doc_id", docID, "filename", doc.Filename)
	return nil
}

// spool writes the raw upload to the spool directory under the document
// ID, keeping the original extension for later re-extraction.
func (s *Service) spool(docID, filename string, data []byte) (string, error) {
	if err := s.lock.Lock(); err != nil {
		return "", err
	}
	defer s.lock.Unlock()

	path := filepath.Join(s.uploadDir, docID+strings.ToLower(filepath.Ext(filename)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to spool %s: %w", filename, err)
	}
	return path, nil
}

// spoolText stores the extracted canonical text next to the raw upload.
// The .text suffix cannot collide with spooled uploads, whose extensions
// are always format extensions.
func (s *Service) spoolText(docID, text string) (string, error) {
	if err := s.lock.Lock(); err != nil {
		return "", err
	}
	defer s.lock.Unlock()

	path := filepath.Join(s.uploadDir, docID+".text")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to store canonical text for %s: %w", docID, err)
	}
	return path, nil
}

// CanonicalText returns the stored canonical text for a document. It is
// the exact text that was token-counted and chunked at ingest.
func (s *Service) CanonicalText(ctx context.Context, doc *store.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.TextPath == "" {
		return "", sdcherrors.DocumentNotReady(doc.ID, doc.Status)
	}
	data, err := os.ReadFile(doc.TextPath)
	if err != nil {
		return "", sdcherrors.StoreFailure("read canonical text", err)
	}
	return string(data), nil
}

// discard removes a spooled file, holding the directory lock.
func (s *Service) discard(path string) {
	if err := s.lock.Lock(); err != nil {
		s.logger.Warn("spool_remove_failed", "path", path, "error", err)
		return
	}
	defer s.lock.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("spool_remove_failed", "path", path, "error", err)
	}
}

// fail records a pipeline failure on the document. The write uses a
// detached context so a cancelled request still leaves the record in a
// terminal state.
func (s *Service) fail(ctx context.Context, docID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.SetStatus(ctx, docID, store.StatusFailed, cause.Error()); err != nil {
		s.logger.Error("status_update_failed", "doc_id", docID, "error", err)
	}
}

// prewarmArtifact builds the vector artifact in the background so the
// first query does not pay the embedding cost.
func (s *Service) prewarmArtifact(docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), prewarmTimeout)
	defer cancel()

	if _, err := s.builder.Artifact(ctx, docID); err != nil {
		s.logger.Warn("artifact_prewarm_failed", "doc_id", docID, "error", err)
	}
}
