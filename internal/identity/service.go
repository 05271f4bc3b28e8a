// ABOUTME: Identity service: account registration, login and token issuance
// ABOUTME: Also the authority that delegated validators ask to check tokens

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/server"
	"github.com/2389/portal-core/internal/store"
	"github.com/google/uuid"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Store is the persistence the identity service owns.
type Store interface {
	CreateUser(ctx context.Context, u *store.User) error
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]*store.User, error)
}

// Issuer signs and checks tokens with the shared secret.
type Issuer interface {
	auth.Validator
	Generate(subject, username string, role auth.Role, ttl time.Duration) (string, time.Time, error)
}

// Session is an issued token and the account it belongs to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *store.User
}

// Options configures a Service.
type Options struct {
	Store      Store
	Issuer     Issuer
	TokenTTL   time.Duration
	BcryptCost int
	Logger     *slog.Logger
}

// Service manages portal accounts.
type Service struct {
	store  Store
	issuer Issuer
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

func New(opts Options) *Service {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:  opts.Store,
		issuer: opts.Issuer,
		ttl:    ttl,
		cost:   opts.BcryptCost,
		now:    time.Now,
		logger: opts.Logger.With("component", "identity"),
	}
}

// Register creates an account and signs it in. The role defaults to student.
func (s *Service) Register(ctx context.Context, username, password, role string) (*Session, error) {
	username = strings.TrimSpace(username)
	if role == "" {
		role = string(auth.RoleStudent)
	}
	r, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", server.ErrInvalidArgument, err)
	}

	hash, err := auth.HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}
	u := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         string(r),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return s.issue(u)
}

// Login checks a password and issues a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	switch {
	case errors.Is(err, store.ErrNotFound):
		auth.CheckPassword("", password)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *Service) issue(u *store.User) (*Session, error) {
	role, err := auth.ParseRole(u.Role)
	if err != nil {
		return nil, fmt.Errorf("stored user %s: %w", u.ID, err)
	}
	token, exp, err := s.issuer.Generate(u.ID, u.Username, role, s.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// ValidateToken checks token with the issuer's secret.
func (s *Service) ValidateToken(ctx context.Context, token string) (*auth.Identity, error) {
	return s.issuer.Validate(ctx, token)
}

// ListStudents returns every student account. Faculty only.
func (s *Service) ListStudents(ctx context.Context, caller *auth.AuthContext) ([]*store.User, error) {
	if err := auth.Require(caller, auth.RoleFaculty); err != nil {
		return nil, err
	}
	return s.store.ListUsersByRole(ctx, string(auth.RoleStudent))
}
