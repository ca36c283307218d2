package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.DocumentsUploaded.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.DocumentsUploaded))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DocumentsUploaded))
}

func TestObserveIngestion(t *testing.T) {
	m := New()

	m.ObserveIngestion(OutcomeSuccess, time.Second, 3)
	m.ObserveIngestion(OutcomeFailed, time.Second, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsIngested.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsIngested.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksWritten))
}

func TestObserveRetrievalAndProvider(t *testing.T) {
	m := New()

	m.ObserveRetrieval("sql", 10*time.Millisecond, 3, nil)
	m.ObserveRetrieval("milvus", 0, 0, errors.New("down"))
	m.ObserveProvider("openai", "embed", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retrievals.WithLabelValues("sql", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retrievals.WithLabelValues("milvus", OutcomeError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ChatRequests.WithLabelValues(OutcomeSuccess).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "docqa_chat_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}
