package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
)

// staleReason 被回收文档记录的失败原因。
const staleReason = "ingestion abandoned: processing exceeded stale timeout"

// Reaper 将长时间停留在 processing 的文档标记为 failed，
// 并在启动时重新派发仍为 pending 的文档。
type Reaper struct {
	factory    store.Factory
	queue      *IngestQueue
	files      FileStore
	staleAfter time.Duration
	interval   time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewReaper 创建 Reaper。
func NewReaper(factory store.Factory, queue *IngestQueue, files FileStore, staleAfter, interval time.Duration, m *metrics.Metrics) *Reaper {
	return &Reaper{
		factory:    factory,
		queue:      queue,
		files:      files,
		staleAfter: staleAfter,
		interval:   interval,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run 周期性执行 ReapOnce，直到 ctx 取消。
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				logger.Warnw("stale document sweep failed", "error", err.Error())
			}
		}
	}
}

// ReapOnce 将超时的 processing 文档标记为 failed，返回处理的数量。
// 当前进程内仍在执行的文档不会被回收。
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	docs, err := r.factory.Documents().ListStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, doc := range docs {
		if r.queue != nil && r.queue.InFlight(doc.ID) {
			continue
		}
		if err := r.factory.Documents().MarkFailed(ctx, doc.ID, staleReason); err != nil {
			logger.Warnw("failed to reap document", "document_id", doc.ID, "error", err.Error())
			continue
		}
		reaped++
		r.metrics.StaleDocumentsReaped.Inc()
		logger.Warnw("reaped stale document", "document_id", doc.ID, "owner_id", doc.OwnerID)
	}
	return reaped, nil
}

// Recover 在启动时调用：回收中断的文档，并重新入队上传文件仍存在的 pending 文档。
// 文件已丢失的 pending 文档直接标记为 failed。
func (r *Reaper) Recover(ctx context.Context) error {
	reaped, err := r.ReapOnce(ctx)
	if err != nil {
		return err
	}

	pending, err := r.factory.Documents().ListPending(ctx)
	if err != nil {
		return err
	}

	requeued := 0
	for _, doc := range pending {
		if !r.files.Exists(doc.StoragePath) {
			if err := r.factory.Documents().MarkFailed(ctx, doc.ID, "upload file missing"); err != nil {
				logger.Warnw("failed to mark document failed", "document_id", doc.ID, "error", err.Error())
			}
			continue
		}
		if err := r.queue.Enqueue(doc.ID, doc.StoragePath); err != nil {
			logger.Warnw("failed to requeue pending document", "document_id", doc.ID, "error", err.Error())
			continue
		}
		requeued++
	}

	logger.Infow("ingestion recovery finished", "reaped", reaped, "requeued", requeued)
	return nil
}
