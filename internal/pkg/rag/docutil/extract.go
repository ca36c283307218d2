// Package docutil 提供上传文件的存储与文本抽取。
package docutil

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
)

var (
	// ErrUnsupportedType 文件类型不受支持，或内容与扩展名不符。
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrEmptyContent 抽取结果为空。
	ErrEmptyContent = errors.New("document has no extractable text")
)

// 支持的扩展名及其允许的 MIME 类型（含父类型）。
var supported = map[string][]string{
	".txt":  {"text/plain"},
	".md":   {"text/plain"},
	".pdf":  {"application/pdf"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
}

// SupportedExtension 判断文件名扩展名是否受支持。
func SupportedExtension(filename string) bool {
	_, ok := supported[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedExtensions 返回按字母序排列的受支持扩展名。
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supported))
	for ext := range supported {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// CommandRunner 执行外部命令并返回标准输出。
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Extractor 按扩展名分派文本抽取。
type Extractor struct {
	runner    CommandRunner
	pdftotext string
}

// ExtractorOption 配置 Extractor。
type ExtractorOption func(*Extractor)

// WithCommandRunner 替换外部命令执行器（测试使用）。
func WithCommandRunner(r CommandRunner) ExtractorOption {
	return func(e *Extractor) {
		e.runner = r
	}
}

// WithPDFToText 指定 pdftotext 可执行文件。
func WithPDFToText(path string) ExtractorOption {
	return func(e *Extractor) {
		e.pdftotext = path
	}
}

// NewExtractor 创建抽取器。
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		runner:    execRunner{},
		pdftotext: "pdftotext",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 读取 path 对应文件并返回压缩空白后的纯文本。
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	allowed, ok := supported[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() == 0 {
		return "", ErrEmptyContent
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	if !mimeMatches(mt, allowed) {
		return "", fmt.Errorf("%w: %s content in %s file", ErrUnsupportedType, mt.String(), ext)
	}

	var text string
	switch ext {
	case ".txt", ".md":
		text, err = readText(path)
	case ".docx":
		text, err = readDocx(path)
	case ".pdf":
		text, err = e.readPDF(ctx, path)
	}
	if err != nil {
		return "", err
	}

	text = textutil.CollapseWhitespace(text)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func mimeMatches(mt *mimetype.MIME, allowed []string) bool {
	for m := mt; m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(data) {
		logger.Warnw("text file is not valid UTF-8, invalid bytes replaced", "path", path)
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
	}
	return string(data), nil
}

// wordDocument 对应 word/document.xml 的段落与文本节点。
type wordDocument struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func readDocx(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %v", ErrUnsupportedType, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open word/document.xml: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read word/document.xml: %w", err)
		}

		var doc wordDocument
		if err := xml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("parse word/document.xml: %w", err)
		}

		var b strings.Builder
		for i, p := range doc.Body.Paragraphs {
			if i > 0 {
				b.WriteString("\n")
			}
			for _, run := range p.Runs {
				for _, t := range run.Text {
					b.WriteString(t.Content)
				}
			}
		}
		return b.String(), nil
	}

	return "", fmt.Errorf("%w: docx without word/document.xml", ErrUnsupportedType)
}

func (e *Extractor) readPDF(ctx context.Context, path string) (string, error) {
	out, err := e.runner.Run(ctx, e.pdftotext, "-layout", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
