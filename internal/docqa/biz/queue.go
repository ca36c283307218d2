package biz

import (
	"context"
	"errors"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/pkg/infra/pool"
)

// Task 一次 ingestion 请求。
type Task struct {
	DocumentID string
	Path       string
}

// IngestQueue 将 ingestion 与请求生命周期解耦：
// 任务进入有界 channel，由派发循环提交到 worker 池执行。
type IngestQueue struct {
	tasks    chan Task
	pool     *pool.Pool
	ingester *Ingester
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	wg   sync.WaitGroup
	done chan struct{}
}

// NewIngestQueue 创建队列，size 为等待中的任务上限。
func NewIngestQueue(ingester *Ingester, p *pool.Pool, size int, m *metrics.Metrics) *IngestQueue {
	if size <= 0 {
		size = 1
	}
	return &IngestQueue{
		tasks:    make(chan Task, size),
		pool:     p,
		ingester: ingester,
		metrics:  m,
		inflight: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动派发循环。ctx 取消后不再派发新任务。
func (q *IngestQueue) Start(ctx context.Context) {
	go q.dispatch(ctx)
}

// Enqueue 提交任务。同一文档已在队列或执行中时直接返回 nil。
func (q *IngestQueue) Enqueue(documentID, path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.inflight[documentID]; ok {
		return nil
	}

	select {
	case q.tasks <- Task{DocumentID: documentID, Path: path}:
		q.inflight[documentID] = struct{}{}
		q.metrics.QueueDepth.Set(float64(len(q.tasks)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len 返回等待中的任务数。
func (q *IngestQueue) Len() int {
	return len(q.tasks)
}

// InFlight 报告文档是否在队列或执行中。
func (q *IngestQueue) InFlight(documentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[documentID]
	return ok
}

func (q *IngestQueue) dispatch(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.metrics.QueueDepth.Set(float64(len(q.tasks)))
			q.submit(ctx, task)
		}
	}
}

func (q *IngestQueue) submit(ctx context.Context, task Task) {
	q.wg.Add(1)
	err := q.pool.Submit(func() {
		defer q.wg.Done()
		defer q.release(task.DocumentID)
		q.ingester.Ingest(ctx, task.DocumentID, task.Path)
	})
	if err != nil {
		q.wg.Done()
		q.release(task.DocumentID)
		level := logger.Errorw
		if errors.Is(err, pool.ErrPoolClosed) {
			level = logger.Warnw
		}
		// 文档保持 pending，下次启动时由恢复流程重新入队
		level("failed to submit ingestion task", "document_id", task.DocumentID, "error", err.Error())
	}
}

func (q *IngestQueue) release(documentID string) {
	q.mu.Lock()
	delete(q.inflight, documentID)
	q.mu.Unlock()
}

// Stop 停止接收新任务，等待已入队任务派发并执行完毕，或 ctx 超时。
// 派发循环的 ctx 被取消时，尚未派发的任务保持 pending 状态。
func (q *IngestQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		<-q.done
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
