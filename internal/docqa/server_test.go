package docqa

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpopts "github.com/kart-io/docqa/pkg/options/http"
	jwtopts "github.com/kart-io/docqa/pkg/options/jwt"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	pgopts "github.com/kart-io/docqa/pkg/options/postgres"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
	tracingopts "github.com/kart-io/docqa/pkg/options/tracing"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/utils/json"
)

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

// fakeOpenAI answers embeddings with a fixed unit vector and chat with a canned answer.
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data := make([]map[string]any, 0, len(req.Input))
			for i := range req.Input {
				data = append(data, map[string]any{"index": i, "embedding": []float32{1, 0, 0, 0}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		case "/chat/completions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "Paris [1]"}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	dir := t.TempDir()

	pg := pgopts.NewOptions()
	pg.Driver = pgopts.DriverSQLite
	pg.SQLitePath = filepath.Join(dir, "docqa.db")

	rag := ragopts.NewOptions()
	rag.EmbeddingDim = 4
	rag.UploadDir = filepath.Join(dir, "uploads")
	rag.Workers = 1

	jwt := jwtopts.NewOptions()
	jwt.DisableAuth = true
	jwt.DevOwner = "alice"

	embedding := llmopts.NewEmbeddingOptions()
	embedding.BaseURL = baseURL
	embedding.APIKey = "sk-test"
	embedding.Dimensions = 4
	chat := llmopts.NewChatOptions()
	chat.BaseURL = baseURL
	chat.APIKey = "sk-test"

	httpOpts := httpopts.NewOptions()
	httpOpts.Mode = "test"
	httpOpts.ShutdownTimeout = 5 * time.Second

	return &Config{
		HTTPOptions:      httpOpts,
		LogOptions:       logopts.NewOptions(),
		PostgresOptions:  pg,
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		JWTOptions:       jwt,
		EmbeddingOptions: embedding,
		ChatOptions:      chat,
		RAGOptions:       rag,
		TracingOptions:   tracingopts.NewOptions(),
	}
}

func call(t *testing.T, h http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestServerEndToEnd(t *testing.T) {
	openai := fakeOpenAI(t)
	s, err := testConfig(t, openai.URL).NewServer(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.close(context.Background()) })
	h := s.httpServer.Handler

	code, _ := call(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "capitals.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("The capital of France is Paris."))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	code, env := call(t, h, req)
	require.Equal(t, http.StatusOK, code)
	var uploaded struct {
		DocumentID string `json:"document_id"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	require.NotEmpty(t, uploaded.DocumentID)

	require.Eventually(t, func() bool {
		_, env := call(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uploaded.DocumentID+"/status", nil))
		var doc struct {
			Status     string `json:"status"`
			ChunkCount int    `json:"chunk_count"`
		}
		_ = json.Unmarshal(env.Data, &doc)
		return doc.Status == "completed" && doc.ChunkCount == 1
	}, 5*time.Second, 20*time.Millisecond)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/chat", strings.NewReader(`{"query":"What is the capital of France?"}`))
	req.Header.Set("Content-Type", "application/json")
	code, env = call(t, h, req)
	require.Equal(t, http.StatusOK, code)

	var answer struct {
		Answer   string `json:"answer"`
		Metadata struct {
			TotalChunksFound int `json:"total_chunks_found"`
			Sources          []struct {
				DocumentID string `json:"document_id"`
			} `json:"sources"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &answer))
	assert.Equal(t, "Paris [1]", answer.Answer)
	assert.Equal(t, 1, answer.Metadata.TotalChunksFound)
	require.Len(t, answer.Metadata.Sources, 1)
	assert.Equal(t, uploaded.DocumentID, answer.Metadata.Sources[0].DocumentID)
}

func TestNewServerRejectsBadJWTConfig(t *testing.T) {
	cfg := testConfig(t, fakeOpenAI(t).URL)
	cfg.JWTOptions.DisableAuth = false
	cfg.JWTOptions.Key = ""

	_, err := cfg.NewServer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt")
}

type unreachableIndex struct{}

func (unreachableIndex) Insert(context.Context, []*model.Chunk) error { return nil }

func (unreachableIndex) Search(context.Context, []float32, []string, int) ([]store.VectorHit, error) {
	return nil, nil
}

func (unreachableIndex) DeleteDocument(context.Context, string) error { return nil }

func (unreachableIndex) Count(context.Context) (int64, error) {
	return 0, errors.New("milvus: connection refused")
}

func TestHealthChecks(t *testing.T) {
	ok := func(context.Context) error { return nil }

	checks := healthChecks(ok, nil, nil)
	assert.Len(t, checks, 1)
	assert.Contains(t, checks, "database")

	checks = healthChecks(ok, ok, unreachableIndex{})
	require.Len(t, checks, 3)
	assert.NoError(t, checks["redis"](context.Background()))
	assert.EqualError(t, checks["milvus"](context.Background()), "milvus: connection refused")
}
