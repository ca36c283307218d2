package resilience

import (
	"context"
	"errors"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

// ResilientEmbeddingProvider 为 Embedding 供应商增加重试和熔断。
type ResilientEmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

var _ llm.EmbeddingProvider = (*ResilientEmbeddingProvider)(nil)

// NewResilientEmbeddingProvider 创建带韧性功能的 Embedding 供应商。
func NewResilientEmbeddingProvider(p llm.EmbeddingProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *ResilientEmbeddingProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &ResilientEmbeddingProvider{
		provider: p,
		retry:    retry,
		cb:       NewCircuitBreaker(p.Name()+"-embedding", cb),
	}
}

// Embed 带重试和熔断的向量化。
func (r *ResilientEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := RetryWithBackoff(ctx, r.retry, func() error {
		return r.cb.Execute(func() error {
			var err error
			out, err = r.provider.Embed(ctx, texts)
			return err
		})
	})
	return out, err
}

// Name 返回底层供应商名称。
func (r *ResilientEmbeddingProvider) Name() string {
	return r.provider.Name()
}

// CircuitBreaker 返回熔断器（用于监控）。
func (r *ResilientEmbeddingProvider) CircuitBreaker() *CircuitBreaker {
	return r.cb
}

// ResilientChatProvider 为 Chat 供应商增加重试和熔断。
type ResilientChatProvider struct {
	provider llm.ChatProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

var _ llm.ChatProvider = (*ResilientChatProvider)(nil)

// NewResilientChatProvider 创建带韧性功能的 Chat 供应商。
func NewResilientChatProvider(p llm.ChatProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *ResilientChatProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &ResilientChatProvider{
		provider: p,
		retry:    retry,
		cb:       NewCircuitBreaker(p.Name()+"-chat", cb),
	}
}

// Chat 带重试和熔断的对话调用。
func (r *ResilientChatProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (string, error) {
	var out string
	err := RetryWithBackoff(ctx, r.retry, func() error {
		return r.cb.Execute(func() error {
			var err error
			out, err = r.provider.Chat(ctx, messages, opts...)
			return err
		})
	})
	return out, err
}

// Name 返回底层供应商名称。
func (r *ResilientChatProvider) Name() string {
	return r.provider.Name()
}

// IsRetryableError 判断错误是否值得重试。
// 熔断、上下文取消、非临时的 HTTP 状态（如 400/401）不重试，其余错误重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitBreakerOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
