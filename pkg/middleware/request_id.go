// Package middleware provides the gin middleware chain of the docqa API.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/pkg/httputils"
)

// RequestID header names.
const (
	HeaderXRequestID = "X-Request-ID"
)

// requestIDKey is the context key for request ID.
type requestIDKey struct{}

// RequestID returns a middleware that adds a unique request ID to each request.
// The request ID is added to:
//   - Response header (X-Request-ID)
//   - gin context and request context (retrieved with GetRequestID)
func RequestID() gin.HandlerFunc {
	return RequestIDWithGenerator(generateRequestID)
}

// RequestIDWithGenerator returns a RequestID middleware using gen for new ids.
func RequestIDWithGenerator(gen func() string) gin.HandlerFunc {
	if gen == nil {
		gen = generateRequestID
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = gen()
		}

		c.Header(HeaderXRequestID, requestID)
		c.Set(httputils.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, requestID))

		c.Next()
	}
}

// GetRequestID returns the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// generateRequestID generates a random request ID.
func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
