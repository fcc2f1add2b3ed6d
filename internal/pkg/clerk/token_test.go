package clerk

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestResolve_Unverified(t *testing.T) {
	r := NewTokenResolver("")
	assert.False(t, r.Verifies())

	id, err := r.Resolve(signToken(t, "anything", jwt.MapClaims{"clerkId": "user_1"}))
	require.NoError(t, err)
	assert.Equal(t, "user_1", id)

	id, err = r.Resolve(signToken(t, "anything", jwt.MapClaims{"sub": "user_2"}))
	require.NoError(t, err)
	assert.Equal(t, "user_2", id)
}

func TestResolve_Verified(t *testing.T) {
	r := NewTokenResolver("s3cret")
	require.True(t, r.Verifies())

	id, err := r.Resolve(signToken(t, "s3cret", jwt.MapClaims{"clerkId": "user_1", "exp": time.Now().Add(time.Hour).Unix()}))
	require.NoError(t, err)
	assert.Equal(t, "user_1", id)

	_, err = r.Resolve(signToken(t, "wrong", jwt.MapClaims{"clerkId": "user_1"}))
	assert.Equal(t, apperr.VerificationFailed, apperr.CodeOf(err))

	_, err = r.Resolve(signToken(t, "s3cret", jwt.MapClaims{"clerkId": "user_1", "exp": time.Now().Add(-time.Hour).Unix()}))
	assert.Equal(t, apperr.VerificationFailed, apperr.CodeOf(err))
}

func TestResolve_Rejects(t *testing.T) {
	r := NewTokenResolver("")

	for _, token := range []string{"", "   ", "not-a-jwt", signToken(t, "k", jwt.MapClaims{"name": "no id"})} {
		_, err := r.Resolve(token)
		require.Error(t, err)
		assert.Equal(t, apperr.VerificationFailed, apperr.CodeOf(err))
	}
}
