package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtopts "github.com/kart-io/docqa/pkg/options/jwt"
	"github.com/kart-io/docqa/pkg/security/auth/jwt"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newJWT(t *testing.T) *jwt.JWT {
	t.Helper()
	opts := jwtopts.NewOptions()
	opts.Key = "middleware-test-key-at-least-32-chars"
	opts.Expired = time.Hour
	j, err := jwt.New(opts)
	require.NoError(t, err)
	return j
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDWithGenerator(func() string { return "generated" }))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "generated", w.Header().Get(HeaderXRequestID))
		assert.Equal(t, "generated", w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderXRequestID, "abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc", w.Header().Get(HeaderXRequestID))
		assert.Equal(t, "abc", w.Body.String())
	})

	t.Run("oversized header replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderXRequestID, strings.Repeat("x", 200))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "generated", w.Header().Get(HeaderXRequestID))
	})
}

func TestAuth(t *testing.T) {
	j := newJWT(t)
	token, err := j.Sign("alice")
	require.NoError(t, err)

	newRouter := func(opts AuthOptions) *gin.Engine {
		r := gin.New()
		r.Use(RequestID(), Auth(opts))
		r.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, Owner(c))
		})
		return r
	}

	tests := []struct {
		name     string
		opts     AuthOptions
		header   string
		wantCode int
		wantBody string
		wantErr  *errors.Errno
	}{
		{name: "valid token", opts: AuthOptions{Verifier: j}, header: "Bearer " + token.AccessToken, wantCode: http.StatusOK, wantBody: "alice"},
		{name: "lower-case scheme", opts: AuthOptions{Verifier: j}, header: "bearer " + token.AccessToken, wantCode: http.StatusOK, wantBody: "alice"},
		{name: "missing header", opts: AuthOptions{Verifier: j}, wantCode: http.StatusUnauthorized, wantErr: errors.ErrUnauthorized},
		{name: "wrong scheme", opts: AuthOptions{Verifier: j}, header: "Basic abc", wantCode: http.StatusUnauthorized, wantErr: errors.ErrUnauthorized},
		{name: "invalid token", opts: AuthOptions{Verifier: j}, header: "Bearer garbage", wantCode: http.StatusUnauthorized, wantErr: errors.ErrInvalidToken},
		{name: "dev owner", opts: AuthOptions{DevOwner: "dev"}, wantCode: http.StatusOK, wantBody: "dev"},
		{name: "no verifier", opts: AuthOptions{}, header: "Bearer x", wantCode: http.StatusInternalServerError, wantErr: errors.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newRouter(tt.opts).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != nil {
				env := decode(t, w)
				assert.Equal(t, tt.wantErr.Code, env.Code)
				assert.NotEmpty(t, env.RequestID)
				return
			}
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrInternal.Code, decode(t, w).Code)
	assert.NotContains(t, w.Body.String(), "boom")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMetrics(t *testing.T) {
	m := HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "requests_total"}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "duration_seconds"}, []string{"method", "route"}),
	}
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/documents/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/documents/1", "/documents/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/documents/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "unmatched", "404")))
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/", func(c *gin.Context) {
		buf := make([]byte, 64)
		n, _ := c.Request.Body.Read(buf)
		c.String(http.StatusOK, string(buf[:n]))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "small", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too large body")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, errors.ErrFileTooLarge.Code, decode(t, w).Code)
}
