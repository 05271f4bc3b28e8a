// ABOUTME: Grade store operations with role checks and the enrollment precondition
// ABOUTME: The precheck reads the catalog store directly and is not atomic with the write

package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/server"
	"github.com/2389/portal-core/internal/store"
	"github.com/google/uuid"
)

// GradeStore is the persistence the grading service owns.
type GradeStore interface {
	UpsertGrade(ctx context.Context, g *store.Grade) (*store.Grade, bool, error)
	GetGrade(ctx context.Context, studentID, courseID string) (*store.Grade, error)
	ListGradesForStudent(ctx context.Context, studentID string) ([]*store.Grade, error)
	ListGradesForCourse(ctx context.Context, courseID string) ([]*store.Grade, error)
}

// EnrollmentChecker answers whether a student is enrolled right now. It is
// backed by the catalog+enrollment store, read directly.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// UpsertInput is a grade submitted by faculty.
type UpsertInput struct {
	StudentID string
	CourseID  string
	Grade     string
	Semester  string
	Remarks   string
}

// Grades enforces who may read and write grade records.
type Grades struct {
	store       GradeStore
	enrollments EnrollmentChecker
	now         func() time.Time
	logger      *slog.Logger
}

// NewGrades creates the grade component.
func NewGrades(s GradeStore, enrollments EnrollmentChecker, logger *slog.Logger) *Grades {
	return &Grades{
		store:       s,
		enrollments: enrollments,
		now:         time.Now,
		logger:      logger.With("component", "grades"),
	}
}

// Upsert records a grade for an enrolled student, replacing any previous
// grade for the pair. A drop that lands between the enrollment check and
// the write still leaves the grade in place.
func (g *Grades) Upsert(ctx context.Context, caller *auth.AuthContext, in UpsertInput) (*store.Grade, bool, error) {
	if err := auth.Require(caller, auth.RoleFaculty); err != nil {
		return nil, false, err
	}
	grade := strings.TrimSpace(in.Grade)
	if grade == "" {
		return nil, false, fmt.Errorf("%w: grade is required", server.ErrInvalidArgument)
	}

	enrolled, err := g.enrollments.IsEnrolled(ctx, in.StudentID, in.CourseID)
	if err != nil {
		return nil, false, fmt.Errorf("checking enrollment: %w", err)
	}
	if !enrolled {
		return nil, false, store.ErrNotEnrolled
	}

	stored, updated, err := g.store.UpsertGrade(ctx, &store.Grade{
		ID:        uuid.NewString(),
		StudentID: in.StudentID,
		CourseID:  in.CourseID,
		Grade:     grade,
		Semester:  strings.TrimSpace(in.Semester),
		Remarks:   in.Remarks,
		FacultyID: caller.UserID,
		PostedAt:  g.now(),
	})
	if err != nil {
		return nil, false, err
	}

	g.logger.Info("grade posted",
		"grade_id", stored.ID,
		"student_id", in.StudentID,
		"course_id", in.CourseID,
		"faculty_id", caller.UserID,
		"updated", updated,
	)
	return stored, updated, nil
}

// GetForStudent lists a student's grades. Students see only their own.
func (g *Grades) GetForStudent(ctx context.Context, caller *auth.AuthContext, studentID string) ([]*store.Grade, error) {
	if err := auth.Require(caller, auth.RoleStudent, auth.RoleFaculty); err != nil {
		return nil, err
	}
	if caller.Role == auth.RoleStudent && studentID != caller.UserID {
		return nil, fmt.Errorf("%w: students may only view their own grades", auth.ErrForbidden)
	}
	return g.store.ListGradesForStudent(ctx, studentID)
}

// GetForCourse lists every grade in a course. Faculty only.
func (g *Grades) GetForCourse(ctx context.Context, caller *auth.AuthContext, courseID string) ([]*store.Grade, error) {
	if err := auth.Require(caller, auth.RoleFaculty); err != nil {
		return nil, err
	}
	return g.store.ListGradesForCourse(ctx, courseID)
}
