package biz

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
)

// EmbedderConfig Embedder 配置。
type EmbedderConfig struct {
	// Dimension 期望的向量维度，0 表示不校验。
	Dimension int
	// BatchSize 单次请求的文本数。
	BatchSize int
	// Concurrency 单个文档的并发请求数。
	Concurrency int
	// RPS 进程级请求速率上限，0 表示不限制。
	RPS float64
}

// Embedder 是 Embedding 供应商之上的网关。
type Embedder struct {
	provider llm.EmbeddingProvider
	limiter  *rate.Limiter
	config   EmbedderConfig
	metrics  *metrics.Metrics
}

// NewEmbedder 创建 Embedder。
func NewEmbedder(provider llm.EmbeddingProvider, config EmbedderConfig, m *metrics.Metrics) *Embedder {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	e := &Embedder{
		provider: provider,
		config:   config,
		metrics:  m,
	}
	if config.RPS > 0 {
		burst := int(config.RPS)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(config.RPS), burst)
	}
	return e
}

// EmbedQuery 为单条文本生成向量。
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedChunks(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedChunks 分批并发生成向量，返回顺序与输入一致。
func (e *Embedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "embed",
		attribute.String(tracing.ProviderName, e.provider.Name()),
		attribute.Int(tracing.ChunkCount, len(texts)))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = textutil.NormalizeNewlines(t)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)
	for start := 0; start < len(normalized); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(normalized))
		g.Go(func() error {
			vectors, err := e.call(gctx, normalized[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) call(ctx context.Context, batch []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbeddingProvider, err)
		}
	}

	start := time.Now()
	vectors, err := e.provider.Embed(ctx, batch)
	e.metrics.ObserveProvider(e.provider.Name(), "embed", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
	}

	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingProvider, len(vectors), len(batch))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for input %d", ErrEmbeddingProvider, i)
		}
		if e.config.Dimension > 0 && len(v) != e.config.Dimension {
			return nil, fmt.Errorf("%w: vector dimension %d, want %d", ErrEmbeddingProvider, len(v), e.config.Dimension)
		}
	}
	return vectors, nil
}
