// ABOUTME: Transcript view joining enrollments from the enrollment service with local grades
// ABOUTME: Fails the whole request when either source cannot be read

package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
	"github.com/2389/portal-core/internal/store"
	"google.golang.org/grpc"
)

// EnrollmentSource lists a student's enrollments, most recent first.
type EnrollmentSource interface {
	ListForStudent(ctx context.Context, studentID string) ([]*store.Enrollment, error)
}

// GradeLookup fetches a single grade or store.ErrNotFound.
type GradeLookup interface {
	GetGrade(ctx context.Context, studentID, courseID string) (*store.Grade, error)
}

// TranscriptRow is one enrolled course with its grade status.
type TranscriptRow struct {
	CourseID   string
	CourseName string
	EnrolledAt time.Time
	Released   bool
	Grade      string
	Semester   string
	Remarks    string
	PostedAt   time.Time
}

// Aggregator builds transcripts.
type Aggregator struct {
	enrollments EnrollmentSource
	grades      GradeLookup
}

func NewAggregator(enrollments EnrollmentSource, grades GradeLookup) *Aggregator {
	return &Aggregator{enrollments: enrollments, grades: grades}
}

// Transcript returns one row per enrollment. Rows without a grade have
// Released=false and empty grade fields.
func (a *Aggregator) Transcript(ctx context.Context, studentID string) ([]TranscriptRow, error) {
	enrollments, err := a.enrollments.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}

	rows := make([]TranscriptRow, 0, len(enrollments))
	for _, e := range enrollments {
		row := TranscriptRow{
			CourseID:   e.CourseID,
			CourseName: e.CourseName,
			EnrolledAt: e.EnrolledAt,
		}
		g, err := a.grades.GetGrade(ctx, studentID, e.CourseID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("reading grade for %s: %w", e.CourseID, err)
		default:
			row.Released = true
			row.Grade = g.Grade
			row.Semester = g.Semester
			row.Remarks = g.Remarks
			row.PostedAt = g.PostedAt
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EnrollmentLister is the slice of the enrollment client RemoteEnrollments uses.
type EnrollmentLister interface {
	GetStudentEnrollments(ctx context.Context, in *rpc.GetStudentEnrollmentsRequest, opts ...grpc.CallOption) (*rpc.EnrollmentsResponse, error)
}

// RemoteEnrollments reads enrollments from the enrollment service, acting
// with the token of the request being served.
type RemoteEnrollments struct {
	client EnrollmentLister
}

func NewRemoteEnrollments(client EnrollmentLister) *RemoteEnrollments {
	return &RemoteEnrollments{client: client}
}

// ListForStudent calls GetStudentEnrollments once. Transport failures are
// reported as server.ErrDependencyUnavailable.
func (r *RemoteEnrollments) ListForStudent(ctx context.Context, studentID string) ([]*store.Enrollment, error) {
	caller := auth.FromContext(ctx)
	if caller == nil {
		return nil, auth.ErrUnauthenticated
	}

	resp, err := r.client.GetStudentEnrollments(rpc.WithBearer(ctx, caller.Token), &rpc.GetStudentEnrollmentsRequest{
		Token:     caller.Token,
		StudentID: studentID,
	})
	if err != nil {
		if rpc.IsTransportFailure(err) {
			return nil, fmt.Errorf("%w: enrollment service: %v", server.ErrDependencyUnavailable, err)
		}
		return nil, fmt.Errorf("enrollment service: %w", err)
	}

	out := make([]*store.Enrollment, 0, len(resp.Enrollments))
	for _, info := range resp.Enrollments {
		at, err := time.Parse(time.RFC3339, info.EnrollmentDate)
		if err != nil {
			return nil, fmt.Errorf("enrollment service returned bad date %q: %w", info.EnrollmentDate, err)
		}
		out = append(out, &store.Enrollment{
			StudentID:  resp.StudentID,
			CourseID:   info.CourseID,
			CourseName: info.CourseName,
			EnrolledAt: at,
		})
	}
	return out, nil
}
