// Package store 提供文档问答服务的数据存储层。
//
// 关系库保存文档与分块（含向量），所有查询都以 owner 作为过滤条件；
// 可选的 VectorIndex 在 Milvus 中镜像分块向量，用于近邻候选召回。
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/docqa/internal/model"
)

var (
	// ErrNotFound 记录不存在，或不属于请求的 owner。
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict 文档当前状态不允许目标转换。
	ErrStatusConflict = errors.New("document status conflict")
)

// Factory 聚合各存储接口。
type Factory interface {
	Documents() DocumentStore
	Chunks() ChunkStore

	// TX 在单个事务中执行 fn，fn 返回错误时回滚。
	TX(ctx context.Context, fn func(ctx context.Context, tx Factory) error) error

	// AutoMigrate 创建或更新表结构。
	AutoMigrate(ctx context.Context) error
	Close() error
}

// DocumentStore 文档存储接口。除 ingestion 内部使用的方法外，均按 owner 过滤。
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, ownerID, id string) (*model.Document, error)
	// GetByID 不做 owner 过滤，仅供后台任务使用。
	GetByID(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, ownerID string) ([]*model.Document, error)
	// Delete 在同一事务内删除文档及其全部分块。
	Delete(ctx context.Context, ownerID, id string) error

	// Transition 原子地将状态从 from 之一切换到 to，并更新 fields 中的附加列。
	Transition(ctx context.Context, id string, from []model.DocumentStatus, to model.DocumentStatus, fields map[string]any) error
	MarkProcessing(ctx context.Context, id string, now time.Time) error
	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id, reason string) error

	ListStale(ctx context.Context, startedBefore time.Time) ([]*model.Document, error)
	ListPending(ctx context.Context) ([]*model.Document, error)
	// CompletedIDs 返回 owner 下可检索的文档 ID；documentID 非空时只检查该文档。
	CompletedIDs(ctx context.Context, ownerID, documentID string) ([]string, error)
}

// ChunkStore 分块存储接口。
type ChunkStore interface {
	// CreateBatch 按 chunk_index 升序写入分块。
	CreateBatch(ctx context.Context, chunks []*model.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	CountByDocument(ctx context.Context, documentID string) (int64, error)

	// Search 返回与 query 余弦距离最近的分块。
	Search(ctx context.Context, q *SearchQuery) ([]*ChunkHit, error)
	// Hydrate 按 ID 加载分块并计算到 vector 的距离，仍然按 owner 与 completed 状态过滤。
	Hydrate(ctx context.Context, ownerID string, ids []string, vector []float32) ([]*ChunkHit, error)
}

// SearchQuery 检索条件。
type SearchQuery struct {
	Vector     []float32
	OwnerID    string
	DocumentID string
	Limit      int
}

// ChunkHit 检索命中的分块。
type ChunkHit struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Filename   string  `json:"filename"`
	Distance   float64 `json:"distance"`
}
