// Package rag provides ingestion and retrieval configuration options.
package rag

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains ingestion, retrieval and reconciliation settings.
type Options struct {
	// ChunkSize is the number of characters per chunk.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the default number of chunks retrieved per query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MaxTopK caps caller supplied limits.
	MaxTopK int `json:"max-top-k" mapstructure:"max-top-k"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// EmbedBatchSize is the number of chunks per embedding request.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// EmbedConcurrency bounds parallel embedding requests per document.
	EmbedConcurrency int `json:"embed-concurrency" mapstructure:"embed-concurrency"`

	// EmbedRPS limits embedding requests per second across the process. 0 disables the limit.
	EmbedRPS float64 `json:"embed-rps" mapstructure:"embed-rps"`

	// UploadDir stores uploaded files until ingestion finishes.
	UploadDir string `json:"upload-dir" mapstructure:"upload-dir"`

	// MaxUploadSize is the maximum accepted upload in bytes.
	MaxUploadSize int64 `json:"max-upload-size" mapstructure:"max-upload-size"`

	// PDFToText is the pdftotext executable used for PDF extraction.
	PDFToText string `json:"pdftotext" mapstructure:"pdftotext"`

	// Workers is the number of concurrent ingestion tasks.
	Workers int `json:"workers" mapstructure:"workers"`

	// QueueSize is the number of ingestion tasks that may wait for a worker.
	QueueSize int `json:"queue-size" mapstructure:"queue-size"`

	// StaleAfter marks processing documents older than this as failed.
	StaleAfter time.Duration `json:"stale-after" mapstructure:"stale-after"`

	// ReapInterval is the period of the stale document sweep.
	ReapInterval time.Duration `json:"reap-interval" mapstructure:"reap-interval"`

	// QueryTimeout bounds search and chat requests.
	QueryTimeout time.Duration `json:"query-timeout" mapstructure:"query-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:        800,
		ChunkOverlap:     100,
		TopK:             3,
		MaxTopK:          20,
		EmbeddingDim:     1536,
		EmbedBatchSize:   64,
		EmbedConcurrency: 4,
		EmbedRPS:         0,
		UploadDir:        "uploads",
		MaxUploadSize:    20 << 20,
		PDFToText:        "pdftotext",
		Workers:          4,
		QueueSize:        128,
		StaleAfter:       15 * time.Minute,
		ReapInterval:     time.Minute,
		QueryTimeout:     60 * time.Second,
	}
}

// AddFlags adds flags for RAG options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rag."
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Characters per chunk.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Characters shared by consecutive chunks.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Default number of chunks retrieved per query.")
	fs.IntVar(&o.MaxTopK, p+"max-top-k", o.MaxTopK, "Maximum number of chunks a caller may request.")
	fs.IntVar(&o.EmbeddingDim, p+"embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.EmbedBatchSize, p+"embed-batch-size", o.EmbedBatchSize, "Chunks per embedding request.")
	fs.IntVar(&o.EmbedConcurrency, p+"embed-concurrency", o.EmbedConcurrency, "Parallel embedding requests per document.")
	fs.Float64Var(&o.EmbedRPS, p+"embed-rps", o.EmbedRPS, "Embedding requests per second (0 = unlimited).")
	fs.StringVar(&o.UploadDir, p+"upload-dir", o.UploadDir, "Directory for uploaded files.")
	fs.Int64Var(&o.MaxUploadSize, p+"max-upload-size", o.MaxUploadSize, "Maximum upload size in bytes.")
	fs.StringVar(&o.PDFToText, p+"pdftotext", o.PDFToText, "pdftotext executable for PDF extraction.")
	fs.IntVar(&o.Workers, p+"workers", o.Workers, "Concurrent ingestion workers.")
	fs.IntVar(&o.QueueSize, p+"queue-size", o.QueueSize, "Pending ingestion tasks before uploads are rejected.")
	fs.DurationVar(&o.StaleAfter, p+"stale-after", o.StaleAfter, "Age after which processing documents are marked failed.")
	fs.DurationVar(&o.ReapInterval, p+"reap-interval", o.ReapInterval, "Interval of the stale document sweep.")
	fs.DurationVar(&o.QueryTimeout, p+"query-timeout", o.QueryTimeout, "Timeout for search and chat requests.")
}

// Validate validates the RAG options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk-size must be positive"))
	}
	if o.ChunkOverlap <= 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk-overlap must satisfy 0 < overlap < chunk-size, got %d/%d", o.ChunkOverlap, o.ChunkSize))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top-k must be positive"))
	}
	if o.MaxTopK < o.TopK {
		errs = append(errs, fmt.Errorf("rag.max-top-k must be >= rag.top-k"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("rag.embedding-dim must be positive"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.embed-batch-size must be positive"))
	}
	if o.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("rag.embed-concurrency must be positive"))
	}
	if o.EmbedRPS < 0 {
		errs = append(errs, fmt.Errorf("rag.embed-rps must not be negative"))
	}
	if o.UploadDir == "" {
		errs = append(errs, fmt.Errorf("rag.upload-dir is required"))
	}
	if o.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.max-upload-size must be positive"))
	}
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("rag.workers must be positive"))
	}
	if o.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.queue-size must be positive"))
	}
	if o.StaleAfter <= 0 || o.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("rag.stale-after and rag.reap-interval must be positive"))
	}
	if o.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("rag.query-timeout must be positive"))
	}
	return errs
}

// Complete completes the RAG options with defaults.
func (o *Options) Complete() error {
	if o.MaxTopK == 0 {
		o.MaxTopK = 20
	}
	if o.PDFToText == "" {
		o.PDFToText = "pdftotext"
	}
	return nil
}
