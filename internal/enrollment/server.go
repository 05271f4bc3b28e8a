// ABOUTME: gRPC handlers for EnrollmentService
// ABOUTME: Students enroll and drop themselves; faculty may read any student's list

package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
)

// Server implements rpc.EnrollmentServer.
type Server struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewServer wraps l.
func NewServer(l *Ledger, logger *slog.Logger) *Server {
	return &Server{ledger: l, logger: logger.With("component", "enrollment-rpc")}
}

func (s *Server) EnrollInCourse(ctx context.Context, req *rpc.EnrollRequest) (*rpc.EnrollResponse, error) {
	e, err := s.ledger.Enroll(ctx, auth.FromContext(ctx), req.CourseID)
	if err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	return &rpc.EnrollResponse{
		Message:    fmt.Sprintf("enrolled in %s", req.CourseID),
		EnrolledAt: e.EnrolledAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) DropFromCourse(ctx context.Context, req *rpc.DropRequest) (*rpc.DropResponse, error) {
	if err := s.ledger.Drop(ctx, auth.FromContext(ctx), req.CourseID); err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	return &rpc.DropResponse{Message: fmt.Sprintf("dropped %s", req.CourseID)}, nil
}

// GetStudentEnrollments lists the caller's enrollments, or another student's
// when the caller is faculty.
func (s *Server) GetStudentEnrollments(ctx context.Context, req *rpc.GetStudentEnrollmentsRequest) (*rpc.EnrollmentsResponse, error) {
	caller := auth.FromContext(ctx)
	if err := auth.Require(caller, auth.RoleStudent, auth.RoleFaculty); err != nil {
		return nil, server.ToStatus(s.logger, err)
	}

	studentID := req.StudentID
	if studentID == "" {
		studentID = caller.UserID
	}
	if studentID != caller.UserID && caller.Role != auth.RoleFaculty {
		return nil, server.ToStatus(s.logger, fmt.Errorf("%w: students may only list their own enrollments", auth.ErrForbidden))
	}

	list, err := s.ledger.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, server.ToStatus(s.logger, err)
	}

	resp := &rpc.EnrollmentsResponse{
		StudentID:   studentID,
		Enrollments: make([]rpc.EnrollmentInfo, 0, len(list)),
	}
	for _, e := range list {
		resp.Enrollments = append(resp.Enrollments, rpc.EnrollmentInfo{
			CourseID:       e.CourseID,
			CourseName:     e.CourseName,
			EnrollmentDate: e.EnrolledAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}
