package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 文档问答服务错误码: 20 (业务服务范围 20-79)
var (
	// 请求参数错误 (类别 01)
	ErrInvalidQuery     = NewRequestErr(ServiceDocQA, 1, "Invalid query parameters", "查询参数无效")
	ErrMissingFile      = NewRequestErr(ServiceDocQA, 2, "Missing upload file", "缺少上传文件")
	ErrUnsupportedFile  = NewError(ServiceDocQA, CategoryRequest, 3, http.StatusUnsupportedMediaType, codes.InvalidArgument, "Unsupported file type", "不支持的文件类型")
	ErrFileTooLarge     = NewError(ServiceDocQA, CategoryRequest, 4, http.StatusRequestEntityTooLarge, codes.InvalidArgument, "Uploaded file too large", "上传文件过大")
	ErrDocumentNotFound = NewNotFoundErr(ServiceDocQA, 1, "Document not found", "文档不存在")

	// 状态冲突 (类别 05)
	ErrDocumentNotRetryable = NewConflictErr(ServiceDocQA, 1, "Document cannot be retried in its current state", "文档当前状态不可重试")

	// 队列 (类别 06)
	ErrIngestQueueFull = NewRateLimitErr(ServiceDocQA, 1, "Ingestion queue is full", "文档处理队列已满")

	// 内部错误 (类别 07)
	ErrUploadFailed = NewInternalErr(ServiceDocQA, 1, "Document upload failed", "文档上传失败")
	ErrSearchFailed = NewInternalErr(ServiceDocQA, 2, "Search failed", "检索失败")

	// 上游模型服务 (类别 10)
	ErrEmbeddingProvider  = NewNetworkErr(ServiceDocQA, 1, "Embedding provider error", "向量化服务错误")
	ErrCompletionProvider = NewNetworkErr(ServiceDocQA, 2, "Completion provider error", "大模型服务错误")

	// 超时 (类别 11)
	ErrQueryTimeout = NewError(ServiceDocQA, CategoryTimeout, 1, http.StatusRequestTimeout, codes.DeadlineExceeded, "Query timeout", "查询超时")
)
