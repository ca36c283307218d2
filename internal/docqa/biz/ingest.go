package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/infra/tracing"
)

// Extractor 从已保存的上传文件中抽取纯文本。
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// IngesterConfig Ingester 配置。
type IngesterConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Ingester 执行单个文档的 ingestion 状态机：
// pending -> processing -> completed | failed。
type Ingester struct {
	factory   store.Factory
	index     store.VectorIndex
	extractor Extractor
	files     FileStore
	embedder  *Embedder
	config    IngesterConfig
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewIngester 创建 Ingester。index 可以为 nil。
func NewIngester(
	factory store.Factory,
	index store.VectorIndex,
	extractor Extractor,
	files FileStore,
	embedder *Embedder,
	config IngesterConfig,
	m *metrics.Metrics,
) (*Ingester, error) {
	if err := textutil.ValidateSegmentation(config.ChunkSize, config.ChunkOverlap); err != nil {
		return nil, err
	}
	return &Ingester{
		factory:   factory,
		index:     index,
		extractor: extractor,
		files:     files,
		embedder:  embedder,
		config:    config,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// extractionError 标记需要清理上传文件的失败。
type extractionError struct {
	err error
}

func (e *extractionError) Error() string { return "extract text: " + e.err.Error() }
func (e *extractionError) Unwrap() error { return e.err }

// Ingest 处理一个文档。任何失败都会被记录并转换为 failed 状态，不会返回给调用方。
func (i *Ingester) Ingest(ctx context.Context, documentID, path string) {
	ctx, span := tracing.StartSpan(ctx, "ingest", attribute.String(tracing.DocumentID, documentID))
	start := time.Now()

	if err := i.factory.Documents().MarkProcessing(ctx, documentID, i.now()); err != nil {
		// 文档已被删除或已被其它尝试处理
		logger.Warnw("skip ingestion", "document_id", documentID, "error", err.Error())
		tracing.EndSpan(span, err)
		return
	}
	i.metrics.IngestionsInFlight.Inc()
	defer i.metrics.IngestionsInFlight.Dec()

	var (
		count int
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ingestion panic: %v", r)
			}
		}()
		count, err = i.run(ctx, documentID, path)
	}()
	tracing.EndSpan(span, err)

	if err != nil {
		i.fail(ctx, documentID, path, err)
		i.metrics.ObserveIngestion(metrics.OutcomeFailed, time.Since(start), 0)
		return
	}

	i.metrics.ObserveIngestion(metrics.OutcomeSuccess, time.Since(start), count)
	logger.Infow("document ingested",
		"document_id", documentID,
		"chunks", count,
		"duration", time.Since(start).String(),
	)
}

func (i *Ingester) run(ctx context.Context, documentID, path string) (int, error) {
	text, err := i.extractor.Extract(ctx, path)
	if err != nil {
		return 0, &extractionError{err: err}
	}

	segments, err := textutil.Segment(text, i.config.ChunkSize, i.config.ChunkOverlap)
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, &extractionError{err: errors.New("no text to index")}
	}

	vectors, err := i.embedder.EmbedChunks(ctx, segments)
	if err != nil {
		return 0, err
	}

	chunks := make([]*model.Chunk, len(segments))
	for idx, content := range segments {
		chunks[idx] = &model.Chunk{
			DocumentID: documentID,
			ChunkIndex: idx,
			Content:    content,
			Embedding:  pgvector.NewVector(vectors[idx]),
		}
	}

	// 分块写入与状态切换在同一事务中完成，completed 意味着全部分块均已持久化
	err = i.factory.TX(ctx, func(ctx context.Context, tx store.Factory) error {
		if err := tx.Chunks().DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		if err := tx.Chunks().CreateBatch(ctx, chunks); err != nil {
			return err
		}
		if i.index != nil {
			if err := i.index.Insert(ctx, chunks); err != nil {
				return fmt.Errorf("mirror vectors: %w", err)
			}
		}
		return tx.Documents().MarkCompleted(ctx, documentID, len(chunks))
	})
	if err != nil {
		if i.index != nil {
			if derr := i.index.DeleteDocument(context.WithoutCancel(ctx), documentID); derr != nil {
				logger.Warnw("failed to remove mirrored vectors", "document_id", documentID, "error", derr.Error())
			}
		}
		return 0, fmt.Errorf("persist chunks: %w", err)
	}

	return len(chunks), nil
}

func (i *Ingester) fail(ctx context.Context, documentID, path string, cause error) {
	// 请求可能已取消，状态写入不受其影响
	ctx = context.WithoutCancel(ctx)

	logger.Errorw("document ingestion failed", "document_id", documentID, "error", cause.Error())

	if err := i.factory.Documents().MarkFailed(ctx, documentID, cause.Error()); err != nil {
		logger.Errorw("failed to mark document failed", "document_id", documentID, "error", err.Error())
	}

	var extractErr *extractionError
	if errors.As(cause, &extractErr) {
		if err := i.files.Remove(path); err != nil {
			logger.Warnw("failed to remove upload", "document_id", documentID, "path", path, "error", err.Error())
		}
	}
}
