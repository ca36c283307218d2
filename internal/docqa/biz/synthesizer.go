package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
)

// FallbackAnswer 没有检索到任何分块时的固定回答。
const FallbackAnswer = "I couldn't find any relevant information in your documents."

// InsufficientAnswer 上下文不足以回答时模型应给出的回答。
const InsufficientAnswer = "I don't have enough information in your documents."

const promptTemplate = `You are a precise Document Assistant. Answer the question using ONLY the provided context.

STRICT RULES:
1. At the end of sentences that use information from a source, cite it like [1] or [2].
2. If the answer isn't in the context, say "%s"
3. List the source filenames at the very bottom under a "Sources:" heading.

Context:
%s

Question: %s
Answer:`

// Source 答案引用的文档。
type Source struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

// Answer 合成结果。
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Synthesizer 根据排好序的分块生成带引用的答案。
type Synthesizer struct {
	chat    llm.ChatProvider
	metrics *metrics.Metrics
}

// NewSynthesizer 创建 Synthesizer。
func NewSynthesizer(chat llm.ChatProvider, m *metrics.Metrics) *Synthesizer {
	return &Synthesizer{chat: chat, metrics: m}
}

// BuildContext 按检索顺序为每个分块标注从 1 开始的引用编号与文件名。
func BuildContext(hits []*store.ChunkHit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("--- SOURCE %d (File: %s) ---\n%s", i+1, h.Filename, h.Content)
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt 生成发送给模型的完整提示词。
func BuildPrompt(query string, hits []*store.ChunkHit) string {
	return fmt.Sprintf(promptTemplate, InsufficientAnswer, BuildContext(hits), query)
}

// Sources 按文档 ID 去重，保留首次出现的顺序。
func Sources(hits []*store.ChunkHit) []Source {
	seen := make(map[string]struct{}, len(hits))
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocumentID]; ok {
			continue
		}
		seen[h.DocumentID] = struct{}{}
		sources = append(sources, Source{DocumentID: h.DocumentID, Filename: h.Filename})
	}
	return sources
}

// Synthesize 生成答案。hits 为空时直接返回 FallbackAnswer，不调用模型。
func (s *Synthesizer) Synthesize(ctx context.Context, query string, hits []*store.ChunkHit) (ans *Answer, err error) {
	if len(hits) == 0 {
		return &Answer{Answer: FallbackAnswer, Sources: []Source{}}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "synthesize",
		attribute.String(tracing.ProviderName, s.chat.Name()),
		attribute.Int(tracing.ChunkCount, len(hits)))
	defer func() { tracing.EndSpan(span, err) }()

	messages := []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(query, hits)}}

	start := time.Now()
	text, err := s.chat.Chat(ctx, messages, llm.WithTemperature(0))
	s.metrics.ObserveProvider(s.chat.Name(), "chat", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompletionProvider, err)
	}

	return &Answer{Answer: text, Sources: Sources(hits)}, nil
}
