package web

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	derror "goalforge-async/internal/error"
)

// ===== Caller identity primitives =====

// Identity is the already-authenticated caller as yielded by the auth layer.
// Only ID participates in ownership checks; Email is carried for log context
// and never used for authorization.
type Identity struct {
	ID    string
	Email string
}

type identityCtxKey struct{}

// IdentityFrom extracts the caller identity placed by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// WithIdentity injects a caller identity; used by the middleware and tests.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// AuthManager turns Bearer tokens into caller identities. Token issuance and
// verification policy live upstream; this only extracts {id, email} from an
// HMAC-signed token.
type AuthManager struct {
	secret []byte
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret)}
}

type callerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (a *AuthManager) Parse(tok string) (Identity, error) {
	claims := &callerClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return Identity{}, derror.Authentication("invalid or expired token")
	}
	return Identity{ID: claims.Subject, Email: claims.Email}, nil
}
