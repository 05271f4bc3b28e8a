// ABOUTME: Validator abstraction with local and delegated backends
// ABOUTME: Delegated validation asks the identity service over gRPC

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/portal-core/internal/rpc"
	"google.golang.org/grpc"
)

// Identity is the authenticated caller extracted from a token.
type Identity struct {
	UserID   string
	Username string
	Role     Role
}

// Validator verifies a bearer token. Failures are one of ErrMalformedToken,
// ErrInvalidSignature, ErrExpiredToken or ErrAuthorityUnavailable.
type Validator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// TokenAuthority is the subset of the identity client used for delegation.
type TokenAuthority interface {
	ValidateToken(ctx context.Context, in *rpc.ValidateTokenRequest, opts ...grpc.CallOption) (*rpc.ValidateTokenResponse, error)
}

// DelegatedValidator forwards every token to the identity service.
type DelegatedValidator struct {
	authority TokenAuthority
	timeout   time.Duration
}

// NewDelegatedValidator creates a validator that asks authority with the
// given per-call timeout.
func NewDelegatedValidator(authority TokenAuthority, timeout time.Duration) *DelegatedValidator {
	if timeout <= 0 {
		timeout = rpc.DefaultCallTimeout
	}
	return &DelegatedValidator{authority: authority, timeout: timeout}
}

// Validate asks the authority once. Any transport failure, including a
// timeout, is reported as ErrAuthorityUnavailable.
func (v *DelegatedValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.authority.ValidateToken(ctx, &rpc.ValidateTokenRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	if !resp.Valid {
		return nil, ErrorForKind(resp.Kind)
	}

	role, err := ParseRole(resp.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if resp.UserID == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrMalformedToken)
	}
	return &Identity{
		UserID:   resp.UserID,
		Username: resp.Username,
		Role:     role,
	}, nil
}

// KindOf returns the wire kind for a validation error.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return rpc.TokenKindExpired
	case errors.Is(err, ErrInvalidSignature):
		return rpc.TokenKindInvalidSignature
	default:
		return rpc.TokenKindMalformed
	}
}

// ErrorForKind is the inverse of KindOf.
func ErrorForKind(kind string) error {
	switch kind {
	case rpc.TokenKindExpired:
		return ErrExpiredToken
	case rpc.TokenKindInvalidSignature:
		return ErrInvalidSignature
	default:
		return ErrMalformedToken
	}
}
