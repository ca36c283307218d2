// Package jwt provides HMAC JSON Web Token authentication for the docqa API.
//
// The token subject is the owner id that scopes every document operation.
//
// Usage:
//
//	jwtAuth, err := jwt.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Sign a token
//	token, err := jwtAuth.Sign("user-123")
//
//	// Verify a token
//	claims, err := jwtAuth.Verify(ctx, tokenString)
package jwt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	jwtopts "github.com/kart-io/docqa/pkg/options/jwt"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// Claims are the verified claims of a token.
type Claims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss,omitempty"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
	ID        string `json:"jti,omitempty"`
}

// Token is a signed access token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// JWT signs and verifies tokens.
type JWT struct {
	opts   *jwtopts.Options
	method jwt.SigningMethod
	now    func() time.Time
}

// New creates a JWT authenticator from validated options.
func New(opts *jwtopts.Options) (*JWT, error) {
	if opts == nil {
		return nil, fmt.Errorf("jwt options are required")
	}
	if opts.Key == "" {
		return nil, fmt.Errorf("jwt key is required")
	}
	method := jwt.GetSigningMethod(opts.SigningMethod)
	if method == nil || !jwtopts.SupportedSigningMethods[opts.SigningMethod] {
		return nil, fmt.Errorf("unsupported signing method: %s", opts.SigningMethod)
	}
	return &JWT{opts: opts, method: method, now: time.Now}, nil
}

// Sign creates a new token for the given subject.
func (j *JWT) Sign(subject string) (*Token, error) {
	if subject == "" {
		return nil, errors.ErrInvalidParam.WithMessage("subject is empty")
	}

	tokenID, err := generateTokenID()
	if err != nil {
		return nil, err
	}

	now := j.now()
	expiresAt := now.Add(j.opts.Expired)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    j.opts.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
		ID:        tokenID,
	}

	tokenString, err := jwt.NewWithClaims(j.method, claims).SignedString([]byte(j.opts.Key))
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err).WithMessage("failed to sign token")
	}

	return &Token{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Unix(),
	}, nil
}

// Verify validates the token and returns the claims.
func (j *JWT) Verify(_ context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.ErrInvalidToken.WithMessage("token is empty")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.opts.Key), nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !token.Valid {
		return nil, errors.ErrInvalidToken
	}

	if j.opts.Issuer != "" && !claims.VerifyIssuer(j.opts.Issuer, true) {
		return nil, errors.ErrInvalidToken.WithMessage("unexpected issuer")
	}
	if claims.Subject == "" {
		return nil, errors.ErrInvalidToken.WithMessage("token has no subject")
	}

	out := &Claims{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		ID:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Unix()
	}
	return out, nil
}

// mapParseError maps jwt validation errors to API errors.
func mapParseError(err error) *errors.Errno {
	var ve *jwt.ValidationError
	if !stderrors.As(err, &ve) {
		return errors.ErrInvalidToken.WithCause(err)
	}

	switch {
	case ve.Errors&jwt.ValidationErrorExpired != 0:
		return errors.ErrTokenExpired
	case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
		return errors.ErrInvalidToken.WithMessage("invalid signature")
	case ve.Errors&jwt.ValidationErrorMalformed != 0:
		return errors.ErrInvalidToken.WithMessage("malformed token")
	case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
		return errors.ErrInvalidToken.WithMessage("token not valid yet")
	default:
		return errors.ErrInvalidToken.WithCause(err)
	}
}

// generateTokenID generates a random token ID.
func generateTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.ErrInternal.WithCause(err).WithMessage("failed to generate token ID")
	}
	return hex.EncodeToString(b), nil
}
