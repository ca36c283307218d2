package biz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
)

// FileStore 保存上传文件。
type FileStore interface {
	Save(ownerID, filename string, r io.Reader, maxSize int64) (string, int64, error)
	Remove(path string) error
	Exists(path string) bool
}

// ServiceConfig Service 配置。
type ServiceConfig struct {
	DefaultLimit  int
	MaxLimit      int
	MaxUploadSize int64
	QueryTimeout  time.Duration
}

// QueryRequest search 与 chat 的请求参数。
type QueryRequest struct {
	Query      string
	Limit      int
	DocumentID string
}

// ChatMetadata chat 响应的元信息。
type ChatMetadata struct {
	TotalChunksFound int      `json:"total_chunks_found"`
	Sources          []Source `json:"sources"`
}

// ChatResult chat 的响应。
type ChatResult struct {
	Answer   string       `json:"answer"`
	Metadata ChatMetadata `json:"metadata"`
}

// Service 组合 ingestion、检索与答案合成。
type Service struct {
	factory     store.Factory
	index       store.VectorIndex
	files       FileStore
	queue       *IngestQueue
	embedder    *Embedder
	retriever   *Retriever
	synthesizer *Synthesizer
	config      ServiceConfig
	metrics     *metrics.Metrics
}

// NewService 创建 Service。index 可以为 nil。
func NewService(
	factory store.Factory,
	index store.VectorIndex,
	files FileStore,
	queue *IngestQueue,
	embedder *Embedder,
	retriever *Retriever,
	synthesizer *Synthesizer,
	config ServiceConfig,
	m *metrics.Metrics,
) *Service {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultLimit
	}
	if config.MaxLimit < config.DefaultLimit {
		config.MaxLimit = config.DefaultLimit
	}
	return &Service{
		factory:     factory,
		index:       index,
		files:       files,
		queue:       queue,
		embedder:    embedder,
		retriever:   retriever,
		synthesizer: synthesizer,
		config:      config,
		metrics:     m,
	}
}

// Upload 保存文件、创建 pending 文档并提交 ingestion。
// 队列已满时文档被标记为 failed，可通过 Retry 重新提交。
func (s *Service) Upload(ctx context.Context, ownerID, filename string, r io.Reader) (*model.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || !docutil.SupportedExtension(filename) {
		return nil, fmt.Errorf("%w: %s", docutil.ErrUnsupportedType, filename)
	}

	path, size, err := s.files.Save(ownerID, filename, r, s.config.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		OwnerID:     ownerID,
		Filename:    filename,
		StoragePath: path,
		Size:        size,
		Status:      model.StatusPending,
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		doc.ContentType = mt.String()
	}

	if err := s.factory.Documents().Create(ctx, doc); err != nil {
		_ = s.files.Remove(path)
		return nil, err
	}
	s.metrics.DocumentsUploaded.Inc()

	if err := s.queue.Enqueue(doc.ID, path); err != nil {
		reason := "failed to schedule ingestion: " + err.Error()
		if merr := s.factory.Documents().MarkFailed(context.WithoutCancel(ctx), doc.ID, reason); merr != nil {
			logger.Errorw("failed to mark document failed", "document_id", doc.ID, "error", merr.Error())
		}
		return nil, err
	}

	logger.Infow("document uploaded", "document_id", doc.ID, "owner_id", ownerID, "filename", filename, "size", size)
	return doc, nil
}

// List 返回 owner 的文档，最新的在前。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.Document, error) {
	return s.factory.Documents().List(ctx, ownerID)
}

// Get 返回 owner 的文档；不存在或不属于 owner 时返回 store.ErrNotFound。
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Document, error) {
	return s.factory.Documents().Get(ctx, ownerID, id)
}

// Delete 删除文档、分块、向量索引条目与上传文件。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.factory.Documents().Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.factory.Documents().Delete(ctx, ownerID, id); err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.DeleteDocument(ctx, id); err != nil {
			logger.Warnw("failed to delete document vectors", "document_id", id, "error", err.Error())
		}
	}
	if err := s.files.Remove(doc.StoragePath); err != nil {
		logger.Warnw("failed to remove upload", "document_id", id, "error", err.Error())
	}

	logger.Infow("document deleted", "document_id", id, "owner_id", ownerID)
	return nil
}

// Retry 重新处理 failed 文档：清除残留分块，重置为 pending 并入队。
func (s *Service) Retry(ctx context.Context, ownerID, id string) (*model.Document, error) {
	doc, err := s.factory.Documents().Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != model.StatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, doc.Status)
	}
	if !s.files.Exists(doc.StoragePath) {
		return nil, fmt.Errorf("%w: upload file no longer exists", ErrNotRetryable)
	}

	err = s.factory.TX(ctx, func(ctx context.Context, tx store.Factory) error {
		if err := tx.Chunks().DeleteByDocument(ctx, doc.ID); err != nil {
			return err
		}
		return tx.Documents().Transition(ctx, doc.ID,
			[]model.DocumentStatus{model.StatusFailed},
			model.StatusPending,
			map[string]any{"error": nil, "chunk_count": 0, "processing_started_at": nil})
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: %w", ErrNotRetryable, err)
		}
		return nil, err
	}

	if s.index != nil {
		if err := s.index.DeleteDocument(ctx, doc.ID); err != nil {
			logger.Warnw("failed to delete document vectors", "document_id", doc.ID, "error", err.Error())
		}
	}

	if err := s.queue.Enqueue(doc.ID, doc.StoragePath); err != nil {
		if merr := s.factory.Documents().MarkFailed(context.WithoutCancel(ctx), doc.ID, "failed to schedule ingestion: "+err.Error()); merr != nil {
			logger.Errorw("failed to mark document failed", "document_id", doc.ID, "error", merr.Error())
		}
		return nil, err
	}

	doc.Status = model.StatusPending
	doc.Error = nil
	doc.ChunkCount = 0
	logger.Infow("document requeued", "document_id", doc.ID, "owner_id", ownerID)
	return doc, nil
}

// Search 返回与 query 最相关的分块。
func (s *Service) Search(ctx context.Context, ownerID string, req QueryRequest) ([]*store.ChunkHit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.retrieve(ctx, ownerID, req)
}

// Chat 检索相关分块并生成带引用的答案。
func (s *Service) Chat(ctx context.Context, ownerID string, req QueryRequest) (result *ChatResult, err error) {
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		s.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	}()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hits, err := s.retrieve(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}

	ans, err := s.synthesizer.Synthesize(ctx, req.Query, hits)
	if err != nil {
		return nil, err
	}

	return &ChatResult{
		Answer: ans.Answer,
		Metadata: ChatMetadata{
			TotalChunksFound: len(hits),
			Sources:          ans.Sources,
		},
	}, nil
}

func (s *Service) retrieve(ctx context.Context, ownerID string, req QueryRequest) ([]*store.ChunkHit, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	vector, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	return s.retriever.Retrieve(ctx, RetrieveQuery{
		Vector:     vector,
		OwnerID:    ownerID,
		DocumentID: req.DocumentID,
		Limit:      s.limit(req.Limit),
	})
}

func (s *Service) limit(n int) int {
	switch {
	case n <= 0:
		return s.config.DefaultLimit
	case n > s.config.MaxLimit:
		return s.config.MaxLimit
	default:
		return n
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}
