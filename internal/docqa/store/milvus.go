package store

import (
	"context"
	"fmt"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/milvus"
)

// VectorHit 向量索引返回的候选分块。Score 为余弦相似度。
type VectorHit struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Score      float32
}

// VectorIndex 定义近邻候选召回接口。
type VectorIndex interface {
	Insert(ctx context.Context, chunks []*model.Chunk) error
	// Search 只在 documentIDs 范围内召回，documentIDs 为空时返回空结果。
	Search(ctx context.Context, vector []float32, documentIDs []string, topK int) ([]VectorHit, error)
	DeleteDocument(ctx context.Context, documentID string) error
	// Count 返回索引中的向量数，也用于健康检查。
	Count(ctx context.Context) (int64, error)
}

// MilvusIndex 基于 Milvus 的向量索引。
type MilvusIndex struct {
	client     *milvus.Client
	collection string
}

var _ VectorIndex = (*MilvusIndex)(nil)

// NewMilvusIndex 创建 Milvus 索引，确保集合存在且已加载。
func NewMilvusIndex(ctx context.Context, client *milvus.Client, collection string, dimension int) (*MilvusIndex, error) {
	if err := client.EnsureCollection(ctx, collection, dimension); err != nil {
		return nil, fmt.Errorf("prepare milvus collection %s: %w", collection, err)
	}
	return &MilvusIndex{client: client, collection: collection}, nil
}

func (m *MilvusIndex) Insert(ctx context.Context, chunks []*model.Chunk) error {
	rows := make([]milvus.ChunkVector, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, milvus.ChunkVector{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: int64(c.ChunkIndex),
			Embedding:  c.Embedding.Slice(),
		})
	}
	return m.client.Insert(ctx, m.collection, rows)
}

func (m *MilvusIndex) Search(ctx context.Context, vector []float32, documentIDs []string, topK int) ([]VectorHit, error) {
	if len(documentIDs) == 0 || topK <= 0 {
		return []VectorHit{}, nil
	}

	results, err := m.client.Search(ctx, m.collection, vector, topK, milvus.DocumentFilter(documentIDs))
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, len(results))
	for i, r := range results {
		hits[i] = VectorHit{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			ChunkIndex: int(r.ChunkIndex),
			Score:      r.Score,
		}
	}
	return hits, nil
}

func (m *MilvusIndex) DeleteDocument(ctx context.Context, documentID string) error {
	return m.client.DeleteByDocument(ctx, m.collection, documentID)
}

func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	return m.client.GetCollectionStats(ctx, m.collection)
}
