package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docqa/internal/model"
)

func newTestFactory(t *testing.T) Factory {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := NewFactory(db)
	require.NoError(t, f.AutoMigrate(context.Background()))
	return f
}

func createDoc(t *testing.T, f Factory, owner, name string, status model.DocumentStatus) *model.Document {
	t.Helper()
	doc := &model.Document{OwnerID: owner, Filename: name, StoragePath: "/tmp/" + name, Status: status}
	require.NoError(t, f.Documents().Create(context.Background(), doc))
	return doc
}

func addChunks(t *testing.T, f Factory, docID string, vectors ...[]float32) {
	t.Helper()
	items := make([]*model.Chunk, len(vectors))
	for i, v := range vectors {
		items[i] = &model.Chunk{
			DocumentID: docID,
			ChunkIndex: i,
			Content:    fmt.Sprintf("%s-%d", docID, i),
			Embedding:  pgvector.NewVector(v),
		}
	}
	require.NoError(t, f.Chunks().CreateBatch(context.Background(), items))
}

func TestDocuments_CreateGetOwnerScoped(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	doc := createDoc(t, f, "alice", "a.txt", "")
	assert.Len(t, doc.ID, 26)
	assert.Equal(t, model.StatusPending, doc.Status)

	got, err := f.Documents().Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)

	_, err = f.Documents().Get(ctx, "bob", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Documents().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocuments_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	first := createDoc(t, f, "alice", "first.txt", model.StatusPending)
	time.Sleep(2 * time.Millisecond)
	second := createDoc(t, f, "alice", "second.txt", model.StatusPending)
	createDoc(t, f, "bob", "other.txt", model.StatusPending)

	docs, err := f.Documents().List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, second.ID, docs[0].ID)
	assert.Equal(t, first.ID, docs[1].ID)
}

func TestDocuments_Transitions(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)
	docs := f.Documents()
	doc := createDoc(t, f, "alice", "a.txt", model.StatusPending)

	assert.ErrorIs(t, docs.MarkCompleted(ctx, doc.ID, 1), ErrStatusConflict)

	now := time.Now().UTC()
	require.NoError(t, docs.MarkProcessing(ctx, doc.ID, now))
	got, err := docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
	require.NotNil(t, got.ProcessingStartedAt)

	assert.ErrorIs(t, docs.MarkProcessing(ctx, doc.ID, now), ErrStatusConflict)

	require.NoError(t, docs.MarkCompleted(ctx, doc.ID, 3))
	got, err = docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.ChunkCount)

	assert.ErrorIs(t, docs.MarkFailed(ctx, doc.ID, "late"), ErrStatusConflict)
	assert.ErrorIs(t, docs.MarkFailed(ctx, "missing", "x"), ErrNotFound)
}

func TestDocuments_MarkFailedRecordsReason(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)
	doc := createDoc(t, f, "alice", "a.txt", model.StatusPending)

	require.NoError(t, f.Documents().MarkFailed(ctx, doc.ID, "unsupported"))
	got, err := f.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "unsupported", *got.Error)
}

func TestDocuments_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	doc := createDoc(t, f, "alice", "a.txt", model.StatusCompleted)
	other := createDoc(t, f, "alice", "b.txt", model.StatusCompleted)
	addChunks(t, f, doc.ID, []float32{1, 0}, []float32{0, 1})
	addChunks(t, f, other.ID, []float32{1, 1})

	assert.ErrorIs(t, f.Documents().Delete(ctx, "bob", doc.ID), ErrNotFound)

	require.NoError(t, f.Documents().Delete(ctx, "alice", doc.ID))
	_, err := f.Documents().Get(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := f.Chunks().CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.Chunks().CountByDocument(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDocuments_StaleAndPending(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)
	docs := f.Documents()

	stale := createDoc(t, f, "alice", "stale.txt", model.StatusPending)
	fresh := createDoc(t, f, "alice", "fresh.txt", model.StatusPending)
	pending := createDoc(t, f, "alice", "pending.txt", model.StatusPending)

	require.NoError(t, docs.MarkProcessing(ctx, stale.ID, time.Now().UTC().Add(-time.Hour)))
	require.NoError(t, docs.MarkProcessing(ctx, fresh.ID, time.Now().UTC()))

	got, err := docs.ListStale(ctx, time.Now().UTC().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)

	got, err = docs.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

func TestChunks_SearchFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	mine := createDoc(t, f, "alice", "mine.txt", model.StatusCompleted)
	addChunks(t, f, mine.ID,
		[]float32{1, 0, 0},
		[]float32{0.9, 0.1, 0},
		[]float32{0, 1, 0},
		[]float32{0.5, 0.5, 0},
		[]float32{0, 0, 1},
	)
	processing := createDoc(t, f, "alice", "wip.txt", model.StatusProcessing)
	addChunks(t, f, processing.ID, []float32{1, 0, 0})
	foreign := createDoc(t, f, "bob", "theirs.txt", model.StatusCompleted)
	addChunks(t, f, foreign.ID, []float32{1, 0, 0})

	hits, err := f.Chunks().Search(ctx, &SearchQuery{Vector: []float32{1, 0, 0}, OwnerID: "alice", Limit: 3})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, 0, hits[0].ChunkIndex)
	assert.Equal(t, 1, hits[1].ChunkIndex)
	assert.Equal(t, 3, hits[2].ChunkIndex)
	for i, h := range hits {
		assert.Equal(t, mine.ID, h.DocumentID)
		assert.Equal(t, "mine.txt", h.Filename)
		if i > 0 {
			assert.LessOrEqual(t, hits[i-1].Distance, h.Distance)
		}
	}
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestChunks_SearchOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	owners := []string{"alice", "bob", "carol", "", "alice ", "ALICE"}
	for _, o := range owners[:3] {
		doc := createDoc(t, f, o, o+".txt", model.StatusCompleted)
		addChunks(t, f, doc.ID, []float32{1, 0}, []float32{0, 1})
	}

	for _, owner := range owners {
		hits, err := f.Chunks().Search(ctx, &SearchQuery{Vector: []float32{1, 0}, OwnerID: owner, Limit: 10})
		require.NoError(t, err)
		for _, h := range hits {
			doc, err := f.Documents().GetByID(ctx, h.DocumentID)
			require.NoError(t, err)
			assert.Equal(t, owner, doc.OwnerID)
		}
	}
}

func TestChunks_SearchByDocumentAndTieBreak(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	a := createDoc(t, f, "alice", "a.txt", model.StatusCompleted)
	b := createDoc(t, f, "alice", "b.txt", model.StatusCompleted)
	addChunks(t, f, a.ID, []float32{1, 0}, []float32{1, 0})
	addChunks(t, f, b.ID, []float32{1, 0})

	hits, err := f.Chunks().Search(ctx, &SearchQuery{Vector: []float32{1, 0}, OwnerID: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 0, hits[0].ChunkIndex)
	assert.Equal(t, 0, hits[1].ChunkIndex)
	assert.Less(t, hits[0].DocumentID, hits[1].DocumentID)
	assert.Equal(t, 1, hits[2].ChunkIndex)

	hits, err = f.Chunks().Search(ctx, &SearchQuery{Vector: []float32{1, 0}, OwnerID: "alice", DocumentID: b.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, b.ID, hits[0].DocumentID)
}

func TestChunks_SearchEmpty(t *testing.T) {
	f := newTestFactory(t)

	hits, err := f.Chunks().Search(context.Background(), &SearchQuery{Vector: []float32{1}, OwnerID: "nobody", Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChunks_HydrateRespectsScope(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	mine := createDoc(t, f, "alice", "mine.txt", model.StatusCompleted)
	addChunks(t, f, mine.ID, []float32{0, 1}, []float32{1, 0})
	theirs := createDoc(t, f, "bob", "theirs.txt", model.StatusCompleted)
	addChunks(t, f, theirs.ID, []float32{1, 0})

	var ids []string
	require.NoError(t, f.(*datastore).db.Model(&model.Chunk{}).Order("id").Pluck("id", &ids).Error)
	require.Len(t, ids, 3)

	hits, err := f.Chunks().Hydrate(ctx, "alice", ids, []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].ChunkIndex)
	for _, h := range hits {
		assert.Equal(t, mine.ID, h.DocumentID)
	}
}

func TestTX_RollsBack(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)
	doc := createDoc(t, f, "alice", "a.txt", model.StatusProcessing)

	err := f.TX(ctx, func(ctx context.Context, tx Factory) error {
		require.NoError(t, tx.Chunks().CreateBatch(ctx, []*model.Chunk{
			{DocumentID: doc.ID, ChunkIndex: 0, Content: "x", Embedding: pgvector.NewVector([]float32{1})},
		}))
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	n, err := f.Chunks().CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSortHits(t *testing.T) {
	hits := []*ChunkHit{
		{DocumentID: "b", ChunkIndex: 0, Distance: 0.1},
		{DocumentID: "a", ChunkIndex: 1, Distance: 0.1},
		{DocumentID: "a", ChunkIndex: 0, Distance: 0.1},
		{DocumentID: "z", ChunkIndex: 9, Distance: 0.05},
	}
	SortHits(hits)

	assert.Equal(t, "z", hits[0].DocumentID)
	assert.Equal(t, "a", hits[1].DocumentID)
	assert.Equal(t, 0, hits[1].ChunkIndex)
	assert.Equal(t, "b", hits[2].DocumentID)
	assert.Equal(t, 1, hits[3].ChunkIndex)
}
