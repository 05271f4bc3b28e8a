// ABOUTME: Boundary mapping from domain errors to gRPC status errors
// ABOUTME: Every handler returns through ToStatus so reasons stay consistent

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrDependencyUnavailable means a downstream service could not be reached.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrInvalidArgument = errors.New("invalid argument")
)

type mapping struct {
	target error
	code   codes.Code
	reason string
	msg    string
}

var mappings = []mapping{
	{store.ErrNotFound, codes.NotFound, rpc.ReasonCourseNotFound, "course not found"},
	{store.ErrCourseClosed, codes.FailedPrecondition, rpc.ReasonCourseClosed, "course is closed for enrollment"},
	{store.ErrCourseFull, codes.FailedPrecondition, rpc.ReasonCourseFull, "course is full"},
	{store.ErrAlreadyEnrolled, codes.AlreadyExists, rpc.ReasonAlreadyEnrolled, "already enrolled in this course"},
	{store.ErrNotEnrolled, codes.FailedPrecondition, rpc.ReasonNotEnrolled, "student is not enrolled in this course"},
	{store.ErrAlreadyClaimed, codes.AlreadyExists, rpc.ReasonAlreadyClaimed, "course already claimed"},
	{store.ErrUsernameTaken, codes.AlreadyExists, rpc.ReasonUsernameTaken, "username already taken"},
	{store.ErrUnavailable, codes.Unavailable, rpc.ReasonStoreUnavailable, "store unavailable"},
	{ErrDependencyUnavailable, codes.Unavailable, rpc.ReasonDependencyUnavailable, "dependency unavailable"},
}

// ToStatus converts err into a status error. Unknown errors are logged and
// reported as Internal without leaking their text.
func ToStatus(logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if st, ok := auth.ToStatus(err); ok {
		return st
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			if m.code == codes.Unavailable && logger != nil {
				logger.Warn("dependency failure", "error", err)
			}
			return rpc.Error(m.code, m.reason, m.msg)
		}
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return rpc.Error(codes.InvalidArgument, rpc.ReasonInvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return rpc.Error(codes.DeadlineExceeded, rpc.ReasonDependencyUnavailable, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return rpc.Error(codes.Canceled, rpc.ReasonInternal, "request canceled")
	}
	// Errors relayed from a downstream service keep their status.
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) && se.GRPCStatus().Code() != codes.Unknown {
		return se.GRPCStatus().Err()
	}
	if logger != nil {
		logger.Error("internal error", "error", err)
	}
	return rpc.Error(codes.Internal, rpc.ReasonInternal, "internal error")
}
