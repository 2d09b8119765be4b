// Package auth decides who may read or change a user's progression.
package auth

import (
	"context"
	"errors"
	"fmt"

	authlib "example.com/progression/internal/platform/auth"
)

// Scopes understood by the progression API.
const (
	ScopeProgressionRead  = "progression:read"
	ScopeProgressionWrite = "progression:write"
	ScopeProgressionAdmin = "progression:admin"
)

// SelfAlias stands in for the caller's own user id in request paths.
const SelfAlias = "me"

// ErrForbidden is returned when the caller lacks the scope for the target user.
var ErrForbidden = errors.New("forbidden")

type (
	Claims = authlib.Claims
	Config = authlib.Config
)

// WithClaims stores the claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// FromContext returns the claims attached by the middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.FromContext(ctx)
}

// CanAccessUser reports whether claims grant scope on userID. Admins act on any
// user of their tenant; everyone else only on themselves.
func CanAccessUser(claims *Claims, userID, scope string) bool {
	if claims == nil || userID == "" {
		return false
	}
	if claims.HasScope(ScopeProgressionAdmin) {
		return true
	}
	return claims.Subject == userID && claims.HasScope(scope)
}

// ResolveUser maps the requested path user onto a concrete id and checks scope on it.
func ResolveUser(claims *Claims, requested, scope string) (string, error) {
	userID := requested
	if userID == SelfAlias && claims != nil {
		userID = claims.Subject
	}
	if !CanAccessUser(claims, userID, scope) {
		return userID, fmt.Errorf("%w: scope %s on user %s required", ErrForbidden, scope, userID)
	}
	return userID, nil
}
