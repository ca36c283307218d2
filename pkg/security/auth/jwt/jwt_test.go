package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtopts "github.com/kart-io/docqa/pkg/options/jwt"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

const (
	testKey  = "test-secret-key-at-least-32-chars-long!!"
	testUser = "user-123"
)

// createTestJWT 创建一个用于测试的JWT实例
func createTestJWT(t *testing.T, mutate ...func(*jwtopts.Options)) *JWT {
	t.Helper()

	opts := jwtopts.NewOptions()
	opts.Key = testKey
	opts.Expired = time.Hour
	opts.Issuer = "test-issuer"
	for _, m := range mutate {
		m(opts)
	}

	j, err := New(opts)
	require.NoError(t, err)
	return j
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*jwtopts.Options)
		wantErr bool
	}{
		{name: "HS256", mutate: func(o *jwtopts.Options) {}},
		{name: "HS384", mutate: func(o *jwtopts.Options) { o.SigningMethod = "HS384" }},
		{name: "HS512", mutate: func(o *jwtopts.Options) { o.SigningMethod = "HS512" }},
		{name: "RS256 unsupported", mutate: func(o *jwtopts.Options) { o.SigningMethod = "RS256" }, wantErr: true},
		{name: "missing key", mutate: func(o *jwtopts.Options) { o.Key = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := jwtopts.NewOptions()
			opts.Key = testKey
			tt.mutate(opts)

			_, err := New(opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSignAndVerify(t *testing.T) {
	j := createTestJWT(t)

	token, err := j.Sign(testUser)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.NotEmpty(t, token.AccessToken)

	claims, err := j.Verify(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUser, claims.Subject)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.Equal(t, token.ExpiresAt, claims.ExpiresAt)
	assert.NotEmpty(t, claims.ID)
}

func TestSignEmptySubject(t *testing.T) {
	j := createTestJWT(t)

	_, err := j.Sign("")
	assert.ErrorIs(t, err, errors.ErrInvalidParam)
}

func TestVerifyErrors(t *testing.T) {
	j := createTestJWT(t)

	expired := createTestJWT(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Sign(testUser)
	require.NoError(t, err)

	other := createTestJWT(t, func(o *jwtopts.Options) { o.Key = "another-secret-key-at-least-32-chars!!" })
	otherToken, err := other.Sign(testUser)
	require.NoError(t, err)

	foreignIssuer := createTestJWT(t, func(o *jwtopts.Options) { o.Issuer = "someone-else" })
	foreignToken, err := foreignIssuer.Sign(testUser)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	hs512 := createTestJWT(t, func(o *jwtopts.Options) { o.SigningMethod = "HS512" })
	hs512Token, err := hs512.Sign(testUser)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  *errors.Errno
	}{
		{name: "empty", token: "", want: errors.ErrInvalidToken},
		{name: "malformed", token: "not-a-token", want: errors.ErrInvalidToken},
		{name: "expired", token: expiredToken.AccessToken, want: errors.ErrTokenExpired},
		{name: "bad signature", token: otherToken.AccessToken, want: errors.ErrInvalidToken},
		{name: "issuer mismatch", token: foreignToken.AccessToken, want: errors.ErrInvalidToken},
		{name: "no subject", token: noSubject, want: errors.ErrInvalidToken},
		{name: "algorithm mismatch", token: hs512Token.AccessToken, want: errors.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := j.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
