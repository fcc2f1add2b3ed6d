package clerk

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

// TokenResolver maps an identity token to the caller's clerk id. Tokens are
// issued elsewhere; without a secret the claims are read unverified.
type TokenResolver struct {
	secret []byte
}

func NewTokenResolver(secret string) *TokenResolver {
	return &TokenResolver{secret: []byte(strings.TrimSpace(secret))}
}

func NewTokenResolverFromEnv() *TokenResolver {
	return NewTokenResolver(env.GetEnv("AUTH_TOKEN_SECRET", ""))
}

// Verifies reports whether signatures are checked.
func (r *TokenResolver) Verifies() bool {
	return len(r.secret) > 0
}

// Resolve returns the clerkId claim, falling back to sub.
func (r *TokenResolver) Resolve(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.New(apperr.VerificationFailed, "Not authorized. Please login again")
	}

	claims := jwt.MapClaims{}
	var err error
	if r.Verifies() {
		_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return r.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.VerificationFailed, "Invalid token", err)
	}

	if id, ok := claims["clerkId"].(string); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id), nil
	}
	if sub, err := claims.GetSubject(); err == nil && strings.TrimSpace(sub) != "" {
		return strings.TrimSpace(sub), nil
	}
	return "", apperr.New(apperr.VerificationFailed, "Invalid token")
}
