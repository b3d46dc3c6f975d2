package store

import "time"

// Document ingestion statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document is the persisted metadata for one ingested file.
type Document struct {
	ID         string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Filename   string    `json:"filename" gorm:"type:varchar(512);not null;index"`
	FileSize   int64     `json:"file_size" gorm:"not null"`
	MimeType   string    `json:"mime_type" gorm:"type:varchar(128)"`
	FilePath   string    `json:"file_path,omitempty" gorm:"type:varchar(1024)"`
	TextPath   string    `json:"-" gorm:"type:varchar(1024)"`
	TokenCount int       `json:"token_count"`
	Tier       int       `json:"tier"`
	TierLabel  string    `json:"tier_label" gorm:"type:varchar(64)"`
	PageCount  int       `json:"page_count,omitempty"`
	RowCount   int       `json:"row_count,omitempty"`
	Status     string    `json:"status" gorm:"type:varchar(32);not null;default:'pending';index"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DocumentChunk is one persisted chunk of a tier 3 or tier 4 document.
// Chunks are the source of truth for chunk text; vectors and ranking
// stats live in the artifact cache and are rebuilt from chunks when
// missing.
type DocumentChunk struct {
	ID              uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	DocumentID      string `json:"-" gorm:"type:varchar(64);not null;index:idx_doc_chunk,unique,priority:1"`
	ChunkIndex      int    `json:"index" gorm:"not null;index:idx_doc_chunk,unique,priority:2"`
	Content         string `json:"content" gorm:"type:text;not null"`
	TokenCount      int    `json:"token_count" gorm:"not null"`
	Section         string `json:"section,omitempty" gorm:"type:varchar(512)"`
	StartChar       int    `json:"start_char"`
	EndChar         int    `json:"end_char"`
	EmbeddingCached bool   `json:"embedding_cached" gorm:"default:false"`
}
