// Package textutil 提供 RAG 相关的文本处理工具函数。
package textutil

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrConfiguration 切分参数不合法。
var ErrConfiguration = errors.New("invalid segmenter configuration")

// 默认切分参数。
const (
	DefaultChunkSize = 800
	DefaultOverlap   = 100
)

// ValidateSegmentation 校验 0 < overlap < chunkSize。
func ValidateSegmentation(chunkSize, overlap int) error {
	if overlap <= 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: need 0 < overlap < chunk_size, got overlap=%d chunk_size=%d",
			ErrConfiguration, overlap, chunkSize)
	}
	return nil
}

// Segment 将文本切分为长度为 chunkSize（Unicode 字符数）的重叠窗口。
// 窗口起点每次前进 chunkSize-overlap，直到某个窗口覆盖文本末尾为止；
// 最后一个窗口可能短于 chunkSize。空文本返回空切片。
func Segment(text string, chunkSize, overlap int) ([]string, error) {
	if err := ValidateSegmentation(chunkSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []string{}, nil
	}

	step := chunkSize - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; ; start += step {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks, nil
}

// Reassemble 是 Segment 的逆操作：拼接首块以及后续各块去掉 overlap 前缀的部分。
func Reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		if len(r) > overlap {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}

// NormalizeNewlines 将换行符替换为空格，用于 embedding 输入。
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

// CollapseWhitespace 将连续空白压缩为单个空格并去除首尾空白。
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，1 表示完全相同，-1 表示完全相反。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance 返回 1 - CosineSimilarity，范围 [0, 2]，越小越相似。
// 与 pgvector 的 <=> 运算符语义一致。
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
