// Package model provides the persisted data models of the docqa service.
package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

const (
	// StatusPending 已上传，等待处理
	StatusPending DocumentStatus = "pending"
	// StatusProcessing 正在抽取、切分与向量化
	StatusProcessing DocumentStatus = "processing"
	// StatusCompleted 全部分块已写入，可被检索
	StatusCompleted DocumentStatus = "completed"
	// StatusFailed 处理失败，不可被检索
	StatusFailed DocumentStatus = "failed"
)

// Terminal reports whether no further automatic transition happens from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is an uploaded file owned by one user.
type Document struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(26)"`
	OwnerID     string         `json:"owner_id" gorm:"type:varchar(128);not null;index:idx_documents_owner_status,priority:1"`
	Filename    string         `json:"filename" gorm:"type:varchar(512);not null"`
	StoragePath string         `json:"-" gorm:"type:varchar(1024);not null"`
	ContentType string         `json:"content_type" gorm:"type:varchar(128)"`
	Size        int64          `json:"size"`
	Status      DocumentStatus `json:"status" gorm:"type:varchar(16);not null;default:pending;index:idx_documents_owner_status,priority:2"`
	Error       *string        `json:"error,omitempty" gorm:"type:text"`
	ChunkCount  int            `json:"chunk_count" gorm:"not null;default:0"`
	// ProcessingStartedAt is set when the document enters processing.
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt           time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate assigns a ULID when the id is empty.
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	return nil
}

// EmbeddingDimension is the width of the chunk embedding column on postgres.
const EmbeddingDimension = 1536

// Chunk is a contiguous slice of a document's text with its embedding.
type Chunk struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(26)"`
	DocumentID string          `json:"document_id" gorm:"type:varchar(26);not null;uniqueIndex:idx_chunks_document_index,priority:1"`
	ChunkIndex int             `json:"chunk_index" gorm:"not null;uniqueIndex:idx_chunks_document_index,priority:2"`
	Content    string          `json:"content" gorm:"type:text;not null"`
	Embedding  pgvector.Vector `json:"-" gorm:"type:vector(1536);not null"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Chunk.
func (Chunk) TableName() string {
	return "document_chunks"
}

// BeforeCreate assigns a ULID when the id is empty.
func (c *Chunk) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	return nil
}
