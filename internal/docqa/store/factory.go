package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
)

const dialectPostgres = "postgres"

type datastore struct {
	db *gorm.DB
}

var _ Factory = (*datastore)(nil)

// NewFactory 基于 gorm 连接创建存储工厂，支持 postgres(pgvector) 与 sqlite。
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db: db}
}

func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

func (ds *datastore) Chunks() ChunkStore {
	return newChunks(ds.db)
}

func (ds *datastore) TX(ctx context.Context, fn func(ctx context.Context, tx Factory) error) error {
	return ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &datastore{db: tx})
	})
}

// AutoMigrate 在 postgres 上先启用 vector 扩展。
// 不建 HNSW 索引：检索总在单个 owner 的分块上精确排序，大规模 ANN 由 Milvus 承担。
func (ds *datastore) AutoMigrate(ctx context.Context) error {
	db := ds.db.WithContext(ctx)
	if isPostgres(db) {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("enable pgvector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(&model.Document{}, &model.Chunk{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close 连接由 component 层持有，这里无需释放。
func (ds *datastore) Close() error {
	return nil
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == dialectPostgres
}
