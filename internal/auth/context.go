// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext and the centralized role check

package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// AuthContext holds the authenticated identity extracted from a request.
// Token is kept so handlers can forward it to downstream services.
type AuthContext struct {
	Identity
	Token string
}

// HasRole reports whether the caller holds one of roles.
func (a *AuthContext) HasRole(roles ...Role) bool {
	return a != nil && slices.Contains(roles, a.Role)
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}

// Require checks that caller holds one of roles.
func Require(caller *AuthContext, roles ...Role) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !caller.HasRole(roles...) {
		return fmt.Errorf("%w: role %s not permitted", ErrForbidden, caller.Role)
	}
	return nil
}
