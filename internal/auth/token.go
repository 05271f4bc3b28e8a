// ABOUTME: Local JWT validation and issuance using the shared HS256 secret
// ABOUTME: Maps jwt parse failures onto the portal's token error sentinels

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HS256 secret accepted.
const MinSecretLength = 32

// Token errors
var (
	ErrMalformedToken       = errors.New("malformed token")
	ErrInvalidSignature     = errors.New("invalid token signature")
	ErrExpiredToken         = errors.New("token expired")
	ErrAuthorityUnavailable = errors.New("token authority unavailable")
	ErrSecretTooShort       = fmt.Errorf("secret must be at least %d bytes", MinSecretLength)
)

// Claims is the payload carried by portal tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// LocalValidator verifies tokens in-process with the shared secret. It also
// issues tokens, which is how the identity service and portald mint them.
type LocalValidator struct {
	secret []byte
	now    func() time.Time
}

// LocalOption configures a LocalValidator.
type LocalOption func(*LocalValidator)

// WithClock overrides the time source used for iat/exp handling.
func WithClock(now func() time.Time) LocalOption {
	return func(v *LocalValidator) {
		v.now = now
	}
}

// NewLocalValidator creates a validator for secret.
func NewLocalValidator(secret []byte, opts ...LocalOption) (*LocalValidator, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	v := &LocalValidator{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate parses token and returns the identity it carries.
func (v *LocalValidator) Validate(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMalformedToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrMalformedToken)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	return &Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     role,
	}, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		// Missing exp, nbf in the future and undecodable claims.
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// Generate signs a token for the given principal that expires after ttl.
func (v *LocalValidator) Generate(subject, username string, role Role, ttl time.Duration) (string, time.Time, error) {
	now := v.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Username: username,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}
