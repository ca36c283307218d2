package biz

import "errors"

var (
	// ErrEmbeddingProvider Embedding 供应商调用失败，或返回了不合法的结果。
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrCompletionProvider Chat 供应商调用失败。
	ErrCompletionProvider = errors.New("completion provider error")
	// ErrQueueFull ingestion 队列已满。
	ErrQueueFull = errors.New("ingestion queue is full")
	// ErrQueueClosed ingestion 队列已停止。
	ErrQueueClosed = errors.New("ingestion queue is closed")
	// ErrNotRetryable 文档当前状态不允许重新处理。
	ErrNotRetryable = errors.New("document cannot be retried")
	// ErrEmptyQuery 查询文本为空。
	ErrEmptyQuery = errors.New("query must not be empty")
)
