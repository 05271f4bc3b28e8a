// ABOUTME: gRPC handlers for IdentityService
// ABOUTME: Register, Login and ValidateToken are callable without a token

package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
	"google.golang.org/grpc/codes"
)

// PublicMethods skip the auth interceptor.
var PublicMethods = []string{rpc.MethodRegister, rpc.MethodLogin, rpc.MethodValidateToken}

// Server implements rpc.IdentityServer.
type Server struct {
	svc    *Service
	logger *slog.Logger
}

func NewServer(svc *Service, logger *slog.Logger) *Server {
	return &Server{svc: svc, logger: logger.With("component", "identity-rpc")}
}

func (s *Server) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.AuthResponse, error) {
	sess, err := s.svc.Register(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return authResponse(sess), nil
}

func (s *Server) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.AuthResponse, error) {
	sess, err := s.svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return authResponse(sess), nil
}

// ValidateToken answers with a verdict. Rejections are successful responses.
func (s *Server) ValidateToken(ctx context.Context, req *rpc.ValidateTokenRequest) (*rpc.ValidateTokenResponse, error) {
	id, err := s.svc.ValidateToken(ctx, req.Token)
	if err != nil {
		return &rpc.ValidateTokenResponse{Valid: false, Kind: auth.KindOf(err), Message: err.Error()}, nil
	}
	return &rpc.ValidateTokenResponse{
		Valid:    true,
		UserID:   id.UserID,
		Role:     string(id.Role),
		Username: id.Username,
	}, nil
}

func (s *Server) ListStudents(ctx context.Context, req *rpc.ListStudentsRequest) (*rpc.ListStudentsResponse, error) {
	users, err := s.svc.ListStudents(ctx, auth.FromContext(ctx))
	if err != nil {
		return nil, s.toStatus(err)
	}
	resp := &rpc.ListStudentsResponse{Students: make([]rpc.StudentInfo, 0, len(users))}
	for _, u := range users {
		resp.Students = append(resp.Students, rpc.StudentInfo{StudentID: u.ID, Username: u.Username})
	}
	return resp, nil
}

func (s *Server) toStatus(err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return rpc.Error(codes.Unauthenticated, rpc.ReasonInvalidCredentials, "invalid username or password")
	}
	return server.ToStatus(s.logger, err)
}

func authResponse(sess *Session) *rpc.AuthResponse {
	return &rpc.AuthResponse{
		Token:     sess.Token,
		UserID:    sess.User.ID,
		Username:  sess.User.Username,
		Role:      sess.User.Role,
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	}
}

var _ rpc.IdentityServer = (*Server)(nil)
