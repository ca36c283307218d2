package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
)

const insertBatchSize = 100

type chunks struct {
	db *gorm.DB
}

var _ ChunkStore = (*chunks)(nil)

func newChunks(db *gorm.DB) *chunks {
	return &chunks{db: db}
}

func (s *chunks) CreateBatch(ctx context.Context, items []*model.Chunk) error {
	if len(items) == 0 {
		return nil
	}

	ordered := make([]*model.Chunk, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	if err := s.db.WithContext(ctx).CreateInBatches(ordered, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func (s *chunks) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *chunks) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// scope 仅保留属于 owner 且已完成的文档的分块。
func (s *chunks) scope(ctx context.Context, ownerID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("document_chunks AS c").
		Joins("JOIN documents AS d ON d.id = c.document_id").
		Where("d.owner_id = ? AND d.status = ?", ownerID, model.StatusCompleted)
}

// scopedSearchSQL 先物化 owner 已完成文档的分块，再在其上精确排序，结果不受全局近邻候选集限制。
// %s 为可选的文档过滤条件。
const scopedSearchSQL = `WITH scoped AS MATERIALIZED (
	SELECT c.id, c.document_id, c.chunk_index, c.content, c.embedding, d.filename
	FROM document_chunks AS c
	JOIN documents AS d ON d.id = c.document_id
	WHERE d.owner_id = @owner AND d.status = @status%s
)
SELECT id, document_id, chunk_index, content, filename, embedding <=> @vector AS distance
FROM scoped
ORDER BY distance, chunk_index, document_id
LIMIT @limit`

// Search 在 postgres 上由 pgvector 的 <=> 运算符排序，其它方言在内存中计算余弦距离。
func (s *chunks) Search(ctx context.Context, q *SearchQuery) ([]*ChunkHit, error) {
	if q.Limit <= 0 || len(q.Vector) == 0 {
		return []*ChunkHit{}, nil
	}

	if isPostgres(s.db) {
		filter := ""
		if q.DocumentID != "" {
			filter = " AND c.document_id = @document_id"
		}
		hits := make([]*ChunkHit, 0, q.Limit)
		err := s.db.WithContext(ctx).Raw(fmt.Sprintf(scopedSearchSQL, filter), map[string]any{
			"owner":       q.OwnerID,
			"status":      string(model.StatusCompleted),
			"document_id": q.DocumentID,
			"vector":      pgvector.NewVector(q.Vector),
			"limit":       q.Limit,
		}).Scan(&hits).Error
		if err != nil {
			return nil, fmt.Errorf("search chunks: %w", err)
		}
		return hits, nil
	}

	db := s.scope(ctx, q.OwnerID)
	if q.DocumentID != "" {
		db = db.Where("c.document_id = ?", q.DocumentID)
	}
	hits, err := s.rankInMemory(db, q.Vector)
	if err != nil {
		return nil, err
	}
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (s *chunks) Hydrate(ctx context.Context, ownerID string, ids []string, vector []float32) ([]*ChunkHit, error) {
	if len(ids) == 0 {
		return []*ChunkHit{}, nil
	}
	return s.rankInMemory(s.scope(ctx, ownerID).Where("c.id IN ?", ids), vector)
}

type chunkRow struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	Filename   string
	Embedding  pgvector.Vector
}

func (s *chunks) rankInMemory(db *gorm.DB, vector []float32) ([]*ChunkHit, error) {
	var rows []chunkRow
	err := db.Select("c.id, c.document_id, c.chunk_index, c.content, d.filename, c.embedding").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	hits := make([]*ChunkHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, &ChunkHit{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Filename:   r.Filename,
			Distance:   textutil.CosineDistance(vector, r.Embedding.Slice()),
		})
	}
	SortHits(hits)
	return hits, nil
}

// SortHits 按距离升序排序，距离相同时依次比较 chunk_index 与 document_id。
func SortHits(hits []*ChunkHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.DocumentID < b.DocumentID
	})
}
