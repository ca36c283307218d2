package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/pkg/httputils"
	"github.com/kart-io/docqa/pkg/security/auth/jwt"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// ownerKey is the gin context key holding the authenticated owner id.
const ownerKey = "owner_id"

// Verifier validates a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*jwt.Claims, error)
}

// AuthOptions defines authentication middleware options.
type AuthOptions struct {
	// Verifier validates bearer tokens. Required unless DevOwner is set.
	Verifier Verifier

	// DevOwner, when set, bypasses token verification and authenticates
	// every request as this owner.
	DevOwner string

	// AuthScheme is the authorization scheme.
	// Default: "Bearer"
	AuthScheme string
}

// Auth returns a middleware that authenticates the request and stores the
// token subject as the owner id.
func Auth(opts AuthOptions) gin.HandlerFunc {
	if opts.AuthScheme == "" {
		opts.AuthScheme = "Bearer"
	}

	return func(c *gin.Context) {
		if opts.DevOwner != "" {
			setOwner(c, opts.DevOwner)
			c.Next()
			return
		}

		if opts.Verifier == nil {
			httputils.Abort(c, errors.ErrInternal.WithMessage("authenticator not configured"))
			return
		}

		token := extractToken(c.GetHeader("Authorization"), opts.AuthScheme)
		if token == "" {
			httputils.Abort(c, errors.ErrUnauthorized.WithMessage("missing authentication token"))
			return
		}

		claims, err := opts.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			httputils.Abort(c, err)
			return
		}

		setOwner(c, claims.Subject)
		c.Next()
	}
}

// Owner returns the authenticated owner id of the request.
func Owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func setOwner(c *gin.Context, owner string) {
	c.Set(ownerKey, owner)
}

// extractToken strips the scheme prefix from an Authorization header value.
func extractToken(header, scheme string) string {
	header = strings.TrimSpace(header)
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) || header[len(scheme)] != ' ' {
		return ""
	}
	return strings.TrimSpace(header[len(scheme)+1:])
}
