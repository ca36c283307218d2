package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/infra/tracing"
)

// DefaultLimit 默认返回的分块数。
const DefaultLimit = 3

const (
	backendSQL    = "sql"
	backendMilvus = "milvus"
)

// RetrieveQuery 检索参数。
type RetrieveQuery struct {
	Vector     []float32
	OwnerID    string
	DocumentID string
	Limit      int
}

// Retriever 返回属于 owner 且已完成的文档中与查询向量最近的分块。
type Retriever struct {
	factory         store.Factory
	index           store.VectorIndex
	candidateFactor int
	metrics         *metrics.Metrics
}

// NewRetriever 创建 Retriever。index 为 nil 时完全由关系库排序。
func NewRetriever(factory store.Factory, index store.VectorIndex, candidateFactor int, m *metrics.Metrics) *Retriever {
	if candidateFactor < 1 {
		candidateFactor = 1
	}
	return &Retriever{
		factory:         factory,
		index:           index,
		candidateFactor: candidateFactor,
		metrics:         m,
	}
}

// Retrieve 按余弦距离升序返回至多 Limit 个分块；距离相同时按 chunk_index、document_id 升序。
// 没有可检索的分块时返回空切片。
func (r *Retriever) Retrieve(ctx context.Context, q RetrieveQuery) (hits []*store.ChunkHit, err error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	ctx, span := tracing.StartSpan(ctx, "retrieve",
		attribute.String(tracing.OwnerID, q.OwnerID),
		attribute.String(tracing.DocumentID, q.DocumentID),
		attribute.Int(tracing.Limit, q.Limit))
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	if r.index != nil {
		hits, err = r.retrieveIndexed(ctx, q)
		r.metrics.ObserveRetrieval(backendMilvus, time.Since(start), len(hits), err)
		if err == nil {
			return hits, nil
		}
		logger.Warnw("vector index retrieval failed, falling back to database", "error", err.Error())
		start = time.Now()
	}

	hits, err = r.factory.Chunks().Search(ctx, &store.SearchQuery{
		Vector:     q.Vector,
		OwnerID:    q.OwnerID,
		DocumentID: q.DocumentID,
		Limit:      q.Limit,
	})
	r.metrics.ObserveRetrieval(backendSQL, time.Since(start), len(hits), err)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// retrieveIndexed 先在向量索引中召回候选，再回到关系库校验归属并重新排序。
func (r *Retriever) retrieveIndexed(ctx context.Context, q RetrieveQuery) ([]*store.ChunkHit, error) {
	docIDs, err := r.factory.Documents().CompletedIDs(ctx, q.OwnerID, q.DocumentID)
	if err != nil {
		return nil, err
	}
	if len(docIDs) == 0 {
		return []*store.ChunkHit{}, nil
	}

	candidates, err := r.index.Search(ctx, q.Vector, docIDs, q.Limit*r.candidateFactor)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}

	hits, err := r.factory.Chunks().Hydrate(ctx, q.OwnerID, ids, q.Vector)
	if err != nil {
		return nil, err
	}
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}
