package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
)

type documents struct {
	db *gorm.DB
}

var _ DocumentStore = (*documents)(nil)

func newDocuments(db *gorm.DB) *documents {
	return &documents{db: db}
}

// Create 创建文档记录，状态为空时默认为 pending。
func (s *documents) Create(ctx context.Context, doc *model.Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *documents) Get(ctx context.Context, ownerID, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&doc).Error
	if err != nil {
		return nil, notFound(err, "get document")
	}
	return &doc, nil
}

func (s *documents) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, notFound(err, "get document")
	}
	return &doc, nil
}

// List 返回 owner 的全部文档，最新的在前。
func (s *documents) List(ctx context.Context, ownerID string) ([]*model.Document, error) {
	var docs []*model.Document
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *documents) Delete(ctx context.Context, ownerID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.Select("id").Where("id = ? AND owner_id = ?", id, ownerID).First(&doc).Error; err != nil {
			return notFound(err, "delete document")
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if err := tx.Where("id = ?", doc.ID).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	})
}

func (s *documents) Transition(ctx context.Context, id string, from []model.DocumentStatus, to model.DocumentStatus, fields map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update document status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.conflictOrMissing(ctx, id)
	}
	return nil
}

func (s *documents) MarkProcessing(ctx context.Context, id string, now time.Time) error {
	return s.Transition(ctx, id,
		[]model.DocumentStatus{model.StatusPending},
		model.StatusProcessing,
		map[string]any{"processing_started_at": now, "error": nil})
}

func (s *documents) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	return s.Transition(ctx, id,
		[]model.DocumentStatus{model.StatusProcessing},
		model.StatusCompleted,
		map[string]any{"chunk_count": chunkCount, "error": nil})
}

func (s *documents) MarkFailed(ctx context.Context, id, reason string) error {
	return s.Transition(ctx, id,
		[]model.DocumentStatus{model.StatusPending, model.StatusProcessing},
		model.StatusFailed,
		map[string]any{"error": reason})
}

func (s *documents) ListStale(ctx context.Context, startedBefore time.Time) ([]*model.Document, error) {
	var docs []*model.Document
	err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusProcessing).
		Where("processing_started_at IS NULL OR processing_started_at < ?", startedBefore).
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	return docs, nil
}

func (s *documents) ListPending(ctx context.Context) ([]*model.Document, error) {
	var docs []*model.Document
	err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	return docs, nil
}

func (s *documents) CompletedIDs(ctx context.Context, ownerID, documentID string) ([]string, error) {
	var ids []string
	db := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("owner_id = ? AND status = ?", ownerID, model.StatusCompleted)
	if documentID != "" {
		db = db.Where("id = ?", documentID)
	}
	if err := db.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list completed document ids: %w", err)
	}
	return ids, nil
}

func (s *documents) conflictOrMissing(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("check document: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func notFound(err error, op string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
