// ABOUTME: gRPC interceptor that authenticates requests through a Validator
// ABOUTME: Extracts the token from the request or metadata and populates context

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/2389/portal-core/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// UnaryInterceptor returns a gRPC unary interceptor that authenticates every
// method except those listed in public.
func UnaryInterceptor(validator Validator, logger *slog.Logger, public ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]bool, len(public))
	for _, m := range public {
		open[m] = true
	}

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if open[info.FullMethod] {
			return handler(ctx, req)
		}

		token := rpc.TokenOf(req)
		if token == "" {
			token = bearerFromMetadata(ctx)
		}
		if token == "" {
			logAuthFailure(logger, ctx, "missing token", "method", info.FullMethod)
			return nil, rpc.Error(codes.Unauthenticated, rpc.ReasonTokenMissing, "missing token")
		}

		identity, err := validator.Validate(ctx, token)
		if err != nil {
			logAuthFailure(logger, ctx, "token rejected", "method", info.FullMethod, "error", err)
			st, _ := ToStatus(err)
			return nil, st
		}

		ctx = WithAuth(ctx, &AuthContext{Identity: *identity, Token: token})
		return handler(ctx, req)
	}
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	const prefix = "bearer "
	v := values[0]
	if len(v) < len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}

// ToStatus maps auth errors onto status errors. The boolean is false when err
// is not an auth error, in which case an Internal status is returned.
func ToStatus(err error) (error, bool) {
	switch {
	case errors.Is(err, ErrMalformedToken):
		return rpc.Error(codes.Unauthenticated, rpc.ReasonTokenMalformed, "malformed token"), true
	case errors.Is(err, ErrInvalidSignature):
		return rpc.Error(codes.Unauthenticated, rpc.ReasonTokenInvalid, "invalid token"), true
	case errors.Is(err, ErrExpiredToken):
		return rpc.Error(codes.Unauthenticated, rpc.ReasonTokenExpired, "token expired"), true
	case errors.Is(err, ErrAuthorityUnavailable):
		return rpc.Error(codes.Unavailable, rpc.ReasonAuthorityUnavailable, "token authority unavailable"), true
	case errors.Is(err, ErrUnauthenticated):
		return rpc.Error(codes.Unauthenticated, rpc.ReasonTokenMissing, "authentication required"), true
	case errors.Is(err, ErrForbidden):
		return rpc.Error(codes.PermissionDenied, rpc.ReasonForbidden, err.Error()), true
	default:
		return rpc.Error(codes.Internal, rpc.ReasonInternal, "internal error"), false
	}
}
