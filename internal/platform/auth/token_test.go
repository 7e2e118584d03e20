package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

func newTestService() *TokenService {
	return NewTokenService("test-signing-key", "certledger", "certledger-api", time.Hour)
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateToken(context.Background(), "registrar@campus", RoleIssuer)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "registrar@campus", claims.Subject)
	assert.Equal(t, RoleIssuer, claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	adapted, err := NewMiddlewareAdapter(svc).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, adapted.JTI)
}

func TestGenerateTokenRejectsBadInput(t *testing.T) {
	svc := newTestService()

	_, err := svc.GenerateToken(context.Background(), " ", RoleAdmin)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = svc.GenerateToken(context.Background(), "ops", "superuser")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenFailures(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	expiredCtx := requestcontext.WithTime(ctx, time.Now().Add(-2*time.Hour))
	expired, err := svc.GenerateToken(expiredCtx, "registrar", RoleIssuer)
	require.NoError(t, err)

	otherKey, err := NewTokenService("other-key", "certledger", "certledger-api", time.Hour).GenerateToken(ctx, "registrar", RoleIssuer)
	require.NoError(t, err)

	otherAudience, err := NewTokenService("test-signing-key", "certledger", "elsewhere", time.Hour).GenerateToken(ctx, "registrar", RoleIssuer)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "certledger",
			Audience:  []string{"certledger-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{"empty", "", "empty token"},
		{"garbage", "not-a-jwt", "invalid token"},
		{"expired", expired, "token expired"},
		{"wrong key", otherKey, "invalid token"},
		{"wrong audience", otherAudience, "invalid token"},
		{"alg none", noneAlg, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}
