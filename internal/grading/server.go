// ABOUTME: gRPC handlers for GradingService
// ABOUTME: Grade upload and listings plus the student transcript view

package grading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
	"github.com/2389/portal-core/internal/store"
)

// Server implements rpc.GradingServer.
type Server struct {
	grades     *Grades
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewServer(g *Grades, a *Aggregator, logger *slog.Logger) *Server {
	return &Server{grades: g, aggregator: a, logger: logger.With("component", "grading-rpc")}
}

func (s *Server) UploadGrade(ctx context.Context, req *rpc.UploadGradeRequest) (*rpc.UploadGradeResponse, error) {
	g, updated, err := s.grades.Upsert(ctx, auth.FromContext(ctx), UpsertInput{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Grade:     req.Grade,
		Semester:  req.Semester,
		Remarks:   req.Remarks,
	})
	if err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	msg := "grade posted"
	if updated {
		msg = "grade updated"
	}
	return &rpc.UploadGradeResponse{GradeID: g.ID, Updated: updated, Message: msg}, nil
}

// GetStudentGrades defaults to the caller when no student is named.
func (s *Server) GetStudentGrades(ctx context.Context, req *rpc.GetStudentGradesRequest) (*rpc.GradesResponse, error) {
	caller := auth.FromContext(ctx)
	if caller == nil {
		return nil, server.ToStatus(s.logger, auth.ErrUnauthenticated)
	}
	studentID := req.StudentID
	if studentID == "" {
		studentID = caller.UserID
	}

	list, err := s.grades.GetForStudent(ctx, caller, studentID)
	if err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	return &rpc.GradesResponse{StudentID: studentID, Grades: gradeInfos(list)}, nil
}

func (s *Server) GetCourseGrades(ctx context.Context, req *rpc.GetCourseGradesRequest) (*rpc.CourseGradesResponse, error) {
	list, err := s.grades.GetForCourse(ctx, auth.FromContext(ctx), req.CourseID)
	if err != nil {
		return nil, server.ToStatus(s.logger, err)
	}
	return &rpc.CourseGradesResponse{CourseID: req.CourseID, Grades: gradeInfos(list)}, nil
}

// GetEnrolledCoursesWithGrades returns the calling student's transcript.
func (s *Server) GetEnrolledCoursesWithGrades(ctx context.Context, req *rpc.TranscriptRequest) (*rpc.TranscriptResponse, error) {
	caller := auth.FromContext(ctx)
	if err := auth.Require(caller, auth.RoleStudent); err != nil {
		return nil, server.ToStatus(s.logger, err)
	}

	rows, err := s.aggregator.Transcript(ctx, caller.UserID)
	if err != nil {
		return nil, server.ToStatus(s.logger, fmt.Errorf("transcript for %s: %w", caller.UserID, err))
	}

	resp := &rpc.TranscriptResponse{
		StudentName: caller.Username,
		Courses:     make([]rpc.CourseGradeInfo, 0, len(rows)),
	}
	for _, r := range rows {
		info := rpc.CourseGradeInfo{
			CourseID:       r.CourseID,
			CourseName:     r.CourseName,
			EnrollmentDate: r.EnrolledAt.Format(time.RFC3339),
			GradeReleased:  r.Released,
		}
		if r.Released {
			info.Grade = r.Grade
			info.Semester = r.Semester
			info.Remarks = r.Remarks
			info.DatePosted = r.PostedAt.Format(time.RFC3339)
		}
		resp.Courses = append(resp.Courses, info)
	}
	return resp, nil
}

func gradeInfos(list []*store.Grade) []rpc.GradeInfo {
	out := make([]rpc.GradeInfo, 0, len(list))
	for _, g := range list {
		out = append(out, rpc.GradeInfo{
			GradeID:    g.ID,
			StudentID:  g.StudentID,
			CourseID:   g.CourseID,
			Grade:      g.Grade,
			Semester:   g.Semester,
			Remarks:    g.Remarks,
			DatePosted: g.PostedAt.Format(time.RFC3339),
			FacultyID:  g.FacultyID,
		})
	}
	return out
}
