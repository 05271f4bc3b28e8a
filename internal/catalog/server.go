// ABOUTME: gRPC handlers for CatalogService
// ABOUTME: Course reads are public; claiming requires a faculty token

package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
	"github.com/2389/portal-core/internal/store"
)

// PublicMethods need no token.
var PublicMethods = []string{rpc.MethodGetCourse, rpc.MethodListCourses}

// Server implements rpc.CatalogServer.
type Server struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewServer wraps c.
func NewServer(c *Catalog, logger *slog.Logger) *Server {
	return &Server{catalog: c, logger: logger.With("component", "catalog-rpc")}
}

func courseInfo(c *store.Course) rpc.CourseInfo {
	return rpc.CourseInfo{
		CourseID:        c.ID,
		Name:            c.Name,
		Capacity:        int32(c.Capacity),
		Enrolled:        int32(c.Enrolled),
		IsOpen:          c.Open,
		FacultyID:       c.FacultyID,
		FacultyUsername: c.FacultyUsername,
	}
}

func (s *Server) GetCourse(ctx context.Context, req *rpc.GetCourseRequest) (*rpc.GetCourseResponse, error) {
	course, err := s.catalog.Get(ctx, req.CourseID)
	if err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	return &rpc.GetCourseResponse{Course: courseInfo(course)}, nil
}

func (s *Server) ListCourses(ctx context.Context, _ *rpc.ListCoursesRequest) (*rpc.ListCoursesResponse, error) {
	courses, err := s.catalog.List(ctx)
	if err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	resp := &rpc.ListCoursesResponse{Courses: make([]rpc.CourseInfo, 0, len(courses))}
	for _, c := range courses {
		resp.Courses = append(resp.Courses, courseInfo(c))
	}
	return resp, nil
}

// ClaimCourse lets a faculty member claim a course for themselves. The
// faculty fields default to the caller and may not name someone else.
func (s *Server) ClaimCourse(ctx context.Context, req *rpc.ClaimCourseRequest) (*rpc.ClaimCourseResponse, error) {
	caller := auth.FromContext(ctx)
	if err := auth.Require(caller, auth.RoleFaculty); err != nil {
		return nil, server.ToStatus(s.logger, err)
	}

	facultyID := req.FacultyID
	if facultyID == "" {
		facultyID = caller.UserID
	}
	if facultyID != caller.UserID {
		return nil, server.ToStatus(s.logger, fmt.Errorf("%w: cannot claim on behalf of another faculty member", auth.ErrForbidden))
	}
	username := req.FacultyUsername
	if username == "" {
		username = caller.Username
	}

	if err := s.catalog.Claim(ctx, req.CourseID, facultyID, username); err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	return &rpc.ClaimCourseResponse{Message: fmt.Sprintf("course %s claimed by %s", req.CourseID, username)}, nil
}
