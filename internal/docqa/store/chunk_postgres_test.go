package store

import (
	"context"
	"os"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docqa/internal/model"
)

func newPostgresFactory(t *testing.T) (Factory, *gorm.DB) {
	t.Helper()

	dsn := os.Getenv("DOCQA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCQA_TEST_POSTGRES_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := NewFactory(db)
	require.NoError(t, f.AutoMigrate(context.Background()))
	return f, db
}

// unitVector 返回 axis 维为 1、tail 维为 weight 的向量。
func unitVector(axis int, tail int, weight float32) []float32 {
	v := make([]float32, model.EmbeddingDimension)
	v[axis] = 1
	v[tail] += weight
	return v
}

func TestChunks_PostgresSearchFillsLimitForSmallTenant(t *testing.T) {
	ctx := context.Background()
	f, db := newPostgresFactory(t)

	// 外部建立的 ANN 索引不能让小租户的结果被全局近邻挤掉。
	require.NoError(t, db.Exec("CREATE INDEX IF NOT EXISTS idx_chunks_embedding_test ON document_chunks USING hnsw (embedding vector_cosine_ops)").Error)

	crowd := "crowd-" + ulid.Make().String()
	owner := "tenant-" + ulid.Make().String()
	t.Cleanup(func() {
		db.Exec("DELETE FROM document_chunks WHERE document_id IN (SELECT id FROM documents WHERE owner_id IN (?, ?))", crowd, owner)
		db.Exec("DELETE FROM documents WHERE owner_id IN (?, ?)", crowd, owner)
	})

	query := unitVector(0, 1, 0)

	for i := 0; i < 4; i++ {
		doc := createDoc(t, f, crowd, "crowd.txt", model.StatusCompleted)
		vectors := make([][]float32, 50)
		for j := range vectors {
			vectors[j] = query
		}
		addChunks(t, f, doc.ID, vectors...)
	}

	doc := createDoc(t, f, owner, "mine.txt", model.StatusCompleted)
	addChunks(t, f, doc.ID,
		unitVector(0, 1, 0.5),
		unitVector(0, 1, 3),
		unitVector(0, 1, 0.1),
		unitVector(0, 1, 8),
		unitVector(0, 1, 1),
	)
	pending := createDoc(t, f, owner, "pending.txt", model.StatusPending)
	addChunks(t, f, pending.ID, query)

	hits, err := f.Chunks().Search(ctx, &SearchQuery{OwnerID: owner, Vector: query, Limit: 3})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{2, 0, 4}, []int{hits[0].ChunkIndex, hits[1].ChunkIndex, hits[2].ChunkIndex})
	for i, h := range hits {
		assert.Equal(t, doc.ID, h.DocumentID)
		assert.Equal(t, "mine.txt", h.Filename)
		if i > 0 {
			assert.LessOrEqual(t, hits[i-1].Distance, h.Distance)
		}
	}

	hits, err = f.Chunks().Search(ctx, &SearchQuery{OwnerID: owner, DocumentID: pending.ID, Vector: query, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
