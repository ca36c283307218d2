package biz

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm"
)

// fakeEmbedder 返回由文本内容决定的三维向量。
type fakeEmbedder struct {
	mu     sync.Mutex
	inputs [][]string
	err    error
	dim    int
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, append([]string(nil), texts...))
	err := f.err
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = textVector(t)
		if f.dim > 0 {
			out[i] = make([]float32, f.dim)
		}
	}
	return out, nil
}

func (f *fakeEmbedder) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs
}

func textVector(t string) []float32 {
	return []float32{
		float32(strings.Count(t, "a") + 1),
		float32(strings.Count(t, "b") + 1),
		float32(strings.Count(t, "c") + 1),
	}
}

type fakeChat struct {
	mu       sync.Mutex
	messages [][]llm.Message
	opts     []llm.ChatOptions
	answer   string
	err      error
}

func (f *fakeChat) Name() string { return "fake-chat" }

func (f *fakeChat) Chat(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (string, error) {
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.opts = append(f.opts, llm.ApplyChatOptions(opts...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// fakeExtractor 返回固定文本，或读取文件内容。
type fakeExtractor struct {
	text   string
	err    error
	before func()
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	if f.before != nil {
		f.before()
	}
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

type fakeIndex struct {
	mu      sync.Mutex
	chunks  map[string]*model.Chunk
	deleted []string
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: make(map[string]*model.Chunk)}
}

func (f *fakeIndex) Insert(_ context.Context, chunks []*model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

// Search 返回范围内的全部分块，模拟近似召回。
func (f *fakeIndex) Search(_ context.Context, _ []float32, documentIDs []string, topK int) ([]store.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	allowed := make(map[string]bool)
	for _, id := range documentIDs {
		allowed[id] = true
	}
	var hits []store.VectorHit
	for _, c := range f.chunks {
		if allowed[c.DocumentID] && len(hits) < topK {
			hits = append(hits, store.VectorHit{ChunkID: c.ID, DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex})
		}
	}
	return hits, nil
}

func (f *fakeIndex) DeleteDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	for id, c := range f.chunks {
		if c.DocumentID == documentID {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *fakeIndex) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.chunks)), nil
}

func newTestFactory(t *testing.T) store.Factory {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "biz.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := store.NewFactory(db)
	require.NoError(t, f.AutoMigrate(context.Background()))
	return f
}

func newTestFileStore(t *testing.T) *docutil.FileStore {
	t.Helper()
	fs, err := docutil.NewFileStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return fs
}

type testEnv struct {
	factory   store.Factory
	files     *docutil.FileStore
	embed     *fakeEmbedder
	chat      *fakeChat
	extractor *fakeExtractor
	index     *fakeIndex
	metrics   *metrics.Metrics
	ingester  *Ingester
	queue     *IngestQueue
	service   *Service
}

type envOption func(*testEnv)

func withIndex() envOption {
	return func(e *testEnv) { e.index = newFakeIndex() }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		factory:   newTestFactory(t),
		files:     newTestFileStore(t),
		embed:     &fakeEmbedder{},
		chat:      &fakeChat{answer: "Paris is the capital [1].\n\nSources:\n- a.txt"},
		extractor: &fakeExtractor{},
		metrics:   metrics.New(),
	}
	for _, opt := range opts {
		opt(env)
	}

	var index store.VectorIndex
	if env.index != nil {
		index = env.index
	}

	embedder := NewEmbedder(env.embed, EmbedderConfig{BatchSize: 2, Concurrency: 2}, env.metrics)
	ingester, err := NewIngester(env.factory, index, env.extractor, env.files, embedder,
		IngesterConfig{ChunkSize: 10, ChunkOverlap: 2}, env.metrics)
	require.NoError(t, err)
	env.ingester = ingester

	p, err := pool.NewPool("ingest-test", &pool.Config{Capacity: 2})
	require.NoError(t, err)
	t.Cleanup(p.Release)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	env.queue = NewIngestQueue(ingester, p, 16, env.metrics)
	env.queue.Start(ctx)

	env.service = NewService(env.factory, index, env.files, env.queue, embedder,
		NewRetriever(env.factory, index, 4, env.metrics),
		NewSynthesizer(env.chat, env.metrics),
		ServiceConfig{DefaultLimit: 3, MaxLimit: 20, MaxUploadSize: 1 << 20},
		env.metrics)
	return env
}

func (e *testEnv) status(t *testing.T, id string) model.DocumentStatus {
	t.Helper()
	doc, err := e.factory.Documents().GetByID(context.Background(), id)
	require.NoError(t, err)
	return doc.Status
}

var errBoom = errors.New("boom")
