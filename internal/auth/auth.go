package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated marks a request with a missing or invalid credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the authenticated caller attached to a request.
type Identity struct {
	CallerID string
}

// Provider authenticates an incoming request.
type Provider interface {
	Authenticate(r *http.Request) (Identity, error)
}

// JWTProvider validates HMAC-signed bearer tokens and uses the subject
// claim as the caller identity.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Identity{CallerID: subject}, nil
}

// StaticProvider attaches a fixed caller identity to every request. Meant
// for local development and tests, never production.
type StaticProvider struct {
	callerID string
}

func NewStaticProvider(callerID string) *StaticProvider {
	return &StaticProvider{callerID: callerID}
}

func (p *StaticProvider) Authenticate(*http.Request) (Identity, error) {
	if p.callerID == "" {
		return Identity{}, fmt.Errorf("%w: no static caller configured", ErrUnauthenticated)
	}
	return Identity{CallerID: p.callerID}, nil
}

type contextKey struct{}

// WithIdentity attaches the authenticated identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity stored by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
