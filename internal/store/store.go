// Package store persists document metadata and chunk text, and serves
// filename search. Postgres backs production deployments; SQLite backs
// single-node and test setups. The DSN scheme picks the driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

// Store is the metadata store for documents and their chunks.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open connects to the database named by dsn, migrates the schema, and
// returns a ready Store. A postgres:// or postgresql:// DSN selects
// Postgres; anything else is treated as a SQLite path, with an
// optional sqlite:// prefix.
func Open(dsn string, opts ...Option) (*Store, error) {
	var dialector gorm.Dialector
	usingPostgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if usingPostgres {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	if usingPostgres {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite serializes writers, and a shared in-memory database
		// exists per connection.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Document{}, &DocumentChunk{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database connections.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDocument inserts a new document record.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return sdcherrors.StoreFailure("create document", err)
	}
	return nil
}

// GetDocument returns the document with the given id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sdcherrors.DocumentNotFound(id)
		}
		return nil, sdcherrors.StoreFailure("get document", err)
	}
	return &doc, nil
}

// ListDocuments returns documents newest first.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]Document, error) {
	var docs []Document
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, sdcherrors.StoreFailure("list documents", err)
	}
	return docs, nil
}

// CountDocuments returns the total number of documents.
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Document{}).Count(&count).Error; err != nil {
		return 0, sdcherrors.StoreFailure("count documents", err)
	}
	return count, nil
}

// UpdateDocument saves all fields of an existing document.
func (s *Store) UpdateDocument(ctx context.Context, doc *Document) error {
	if err := s.db.WithContext(ctx).Save(doc).Error; err != nil {
		return sdcherrors.StoreFailure("update document", err)
	}
	return nil
}

// SetStatus updates the ingestion status for a document. The error
// message is cleared unless the status is failed.
func (s *Store) SetStatus(ctx context.Context, id, status, errMsg string) error {
	if status != StatusFailed {
		errMsg = ""
	}
	res := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "error": errMsg})
	if res.Error != nil {
		return sdcherrors.StoreFailure("set status", res.Error)
	}
	if res.RowsAffected == 0 {
		return sdcherrors.DocumentNotFound(id)
	}
	return nil
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&DocumentChunk{}).Error; err != nil {
			return sdcherrors.StoreFailure("delete chunks", err)
		}
		res := tx.Where("id = ?", id).Delete(&Document{})
		if res.Error != nil {
			return sdcherrors.StoreFailure("delete document", res.Error)
		}
		if res.RowsAffected == 0 {
			return sdcherrors.DocumentNotFound(id)
		}
		return nil
	})
}

// ReplaceChunks atomically swaps the stored chunks for a document.
func (s *Store) ReplaceChunks(ctx context.Context, docID string, chunks []DocumentChunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&DocumentChunk{}).Error; err != nil {
			return sdcherrors.StoreFailure("clear chunks", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		for i := range chunks {
			chunks[i].ID = 0
			chunks[i].DocumentID = docID
		}
		if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
			return sdcherrors.StoreFailure("insert chunks", err)
		}
		return nil
	})
}

// GetChunks returns a document's chunks ordered by chunk index.
func (s *Store) GetChunks(ctx context.Context, docID string) ([]DocumentChunk, error) {
	var chunks []DocumentChunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, sdcherrors.StoreFailure("get chunks", err)
	}
	return chunks, nil
}

// MarkChunksEmbedded records whether a document's chunk vectors are
// present in the artifact cache.
func (s *Store) MarkChunksEmbedded(ctx context.Context, docID string, cached bool) error {
	err := s.db.WithContext(ctx).Model(&DocumentChunk{}).
		Where("document_id = ?", docID).
		Update("embedding_cached", cached).Error
	if err != nil {
		return sdcherrors.StoreFailure("mark chunks embedded", err)
	}
	return nil
}
