// ABOUTME: Tests for grade upsert rules, the transcript aggregator and the grading handlers
// ABOUTME: Uses temporary SQLite stores plus fakes for the enrollment service

package grading

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
	"github.com/2389/portal-core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fixture struct {
	courses *store.CourseStore
	grades  *store.GradeStore
	svc     *Grades
	logger  *slog.Logger
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	catalogDB, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, DSN: filepath.Join(dir, "catalog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { catalogDB.Close() })
	gradesDB, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, DSN: filepath.Join(dir, "grades.db")})
	require.NoError(t, err)
	t.Cleanup(func() { gradesDB.Close() })

	courses, err := store.NewCourseStore(ctx, catalogDB)
	require.NoError(t, err)
	_, err = courses.SeedCourses(ctx, []store.Course{
		{ID: "CS101", Name: "Intro", Capacity: 30, Enrolled: 15, Open: true},
		{ID: "MA202", Name: "Linear Algebra", Capacity: 25, Open: true},
	})
	require.NoError(t, err)
	grades, err := store.NewGradeStore(ctx, gradesDB)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{courses: courses, grades: grades, svc: NewGrades(grades, courses, logger), logger: logger}
}

func caller(id string, role auth.Role) *auth.AuthContext {
	return &auth.AuthContext{Identity: auth.Identity{UserID: id, Username: id + "_name", Role: role}, Token: "tok-" + id}
}

func TestUpsert_RequiresEnrollment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.Upsert(ctx, caller("f1", auth.RoleFaculty), UpsertInput{StudentID: "s1", CourseID: "CS101", Grade: "A", Semester: "Fall 2025"})
	assert.ErrorIs(t, err, store.ErrNotEnrolled)

	_, err = f.courses.Enroll(ctx, "s1", "CS101", time.Now())
	require.NoError(t, err)

	g, updated, err := f.svc.Upsert(ctx, caller("f1", auth.RoleFaculty), UpsertInput{StudentID: "s1", CourseID: "CS101", Grade: "A", Semester: "Fall 2025"})
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "f1", g.FacultyID)
}

func TestUpsert_KeepsOneRowWithLatestValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.courses.Enroll(ctx, "s1", "CS101", time.Now())
	require.NoError(t, err)

	first, _, err := f.svc.Upsert(ctx, caller("f1", auth.RoleFaculty), UpsertInput{StudentID: "s1", CourseID: "CS101", Grade: "B", Semester: "Fall 2025"})
	require.NoError(t, err)
	second, updated, err := f.svc.Upsert(ctx, caller("f2", auth.RoleFaculty), UpsertInput{StudentID: "s1", CourseID: "CS101", Grade: "A-", Semester: "Fall 2025", Remarks: "regrade"})
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, first.ID, second.ID)

	list, err := f.svc.GetForStudent(ctx, caller("s1", auth.RoleStudent), "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A-", list[0].Grade)
	assert.Equal(t, "regrade", list[0].Remarks)
	assert.Equal(t, "f2", list[0].FacultyID)
}

func TestUpsert_Roles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := UpsertInput{StudentID: "s1", CourseID: "CS101", Grade: "A", Semester: "Fall 2025"}

	_, _, err := f.svc.Upsert(ctx, caller("s1", auth.RoleStudent), in)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, _, err = f.svc.Upsert(ctx, nil, in)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	in.Grade = "  "
	_, _, err = f.svc.Upsert(ctx, caller("f1", auth.RoleFaculty), in)
	assert.ErrorIs(t, err, server.ErrInvalidArgument)
}

func TestGradeReads_Roles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.GetForStudent(ctx, caller("s1", auth.RoleStudent), "s2")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.GetForStudent(ctx, caller("f1", auth.RoleFaculty), "s2")
	assert.NoError(t, err)

	_, err = f.svc.GetForCourse(ctx, caller("s1", auth.RoleStudent), "CS101")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.GetForCourse(ctx, caller("f1", auth.RoleFaculty), "CS101")
	assert.NoError(t, err)
}

type fakeEnrollments struct {
	list []*store.Enrollment
	err  error
}

func (f *fakeEnrollments) ListForStudent(ctx context.Context, studentID string) ([]*store.Enrollment, error) {
	return f.list, f.err
}

type failingLookup struct{}

func (failingLookup) GetGrade(ctx context.Context, studentID, courseID string) (*store.Grade, error) {
	return nil, store.ErrUnavailable
}

func TestTranscript_MarksUnreleasedGrades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	for _, c := range []string{"CS101", "MA202"} {
		_, err := f.courses.Enroll(ctx, "s1", c, now)
		require.NoError(t, err)
	}
	_, _, err := f.svc.Upsert(ctx, caller("f1", auth.RoleFaculty), UpsertInput{StudentID: "s1", CourseID: "CS101", Grade: "A", Semester: "Fall 2025"})
	require.NoError(t, err)

	enrollments, err := f.courses.ListEnrollments(ctx, "s1")
	require.NoError(t, err)

	rows, err := NewAggregator(&fakeEnrollments{list: enrollments}, f.grades).Transcript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byCourse := map[string]TranscriptRow{}
	for _, r := range rows {
		byCourse[r.CourseID] = r
	}
	assert.True(t, byCourse["CS101"].Released)
	assert.Equal(t, "A", byCourse["CS101"].Grade)
	assert.False(t, byCourse["MA202"].Released)
	assert.Empty(t, byCourse["MA202"].Grade)
	assert.Equal(t, "Linear Algebra", byCourse["MA202"].CourseName)
}

func TestTranscript_DependencyFailureFailsWholeCall(t *testing.T) {
	ctx := context.Background()
	enrolled := &fakeEnrollments{list: []*store.Enrollment{{StudentID: "s1", CourseID: "CS101"}}}

	_, err := NewAggregator(enrolled, failingLookup{}).Transcript(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrUnavailable)

	down := &fakeEnrollments{err: server.ErrDependencyUnavailable}
	_, err = NewAggregator(down, failingLookup{}).Transcript(ctx, "s1")
	assert.ErrorIs(t, err, server.ErrDependencyUnavailable)
}

type fakeLister struct {
	resp  *rpc.EnrollmentsResponse
	err   error
	token string
}

func (f *fakeLister) GetStudentEnrollments(ctx context.Context, in *rpc.GetStudentEnrollmentsRequest, opts ...grpc.CallOption) (*rpc.EnrollmentsResponse, error) {
	f.token = in.Token
	return f.resp, f.err
}

func TestRemoteEnrollments(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), caller("s1", auth.RoleStudent))

	t.Run("forwards token and parses dates", func(t *testing.T) {
		lister := &fakeLister{resp: &rpc.EnrollmentsResponse{
			StudentID: "s1",
			Enrollments: []rpc.EnrollmentInfo{
				{CourseID: "CS101", CourseName: "Intro", EnrollmentDate: "2025-09-01T10:00:00Z"},
			},
		}}
		list, err := NewRemoteEnrollments(lister).ListForStudent(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "tok-s1", lister.token)
		assert.Equal(t, time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC), list[0].EnrolledAt.UTC())
	})

	t.Run("transport failure is dependency unavailable", func(t *testing.T) {
		lister := &fakeLister{err: status.Error(codes.Unavailable, "connection refused")}
		_, err := NewRemoteEnrollments(lister).ListForStudent(ctx, "s1")
		assert.ErrorIs(t, err, server.ErrDependencyUnavailable)
	})

	t.Run("application error passes through", func(t *testing.T) {
		lister := &fakeLister{err: rpc.Error(codes.PermissionDenied, rpc.ReasonForbidden, "nope")}
		_, err := NewRemoteEnrollments(lister).ListForStudent(ctx, "s1")
		require.Error(t, err)
		assert.False(t, errors.Is(err, server.ErrDependencyUnavailable))
		st := server.ToStatus(nil, err)
		assert.Equal(t, codes.PermissionDenied, status.Code(st))
		assert.Equal(t, rpc.ReasonForbidden, rpc.ReasonOf(st))
	})

	t.Run("requires caller", func(t *testing.T) {
		_, err := NewRemoteEnrollments(&fakeLister{}).ListForStudent(context.Background(), "s1")
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})
}

func TestServer_Handlers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.courses.Enroll(ctx, "s1", "CS101", time.Now())
	require.NoError(t, err)

	srv := NewServer(f.svc, NewAggregator(&fakeEnrollments{}, f.grades), f.logger)
	facultyCtx := auth.WithAuth(ctx, caller("f1", auth.RoleFaculty))
	studentCtx := auth.WithAuth(ctx, caller("s1", auth.RoleStudent))

	up, err := srv.UploadGrade(facultyCtx, &rpc.UploadGradeRequest{StudentID: "s1", CourseID: "CS101", Grade: "A", Semester: "Fall 2025"})
	require.NoError(t, err)
	assert.False(t, up.Updated)

	_, err = srv.UploadGrade(facultyCtx, &rpc.UploadGradeRequest{StudentID: "s2", CourseID: "CS101", Grade: "A", Semester: "Fall 2025"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, rpc.ReasonNotEnrolled, rpc.ReasonOf(err))

	_, err = srv.UploadGrade(studentCtx, &rpc.UploadGradeRequest{StudentID: "s1", CourseID: "CS101", Grade: "A", Semester: "Fall 2025"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	mine, err := srv.GetStudentGrades(studentCtx, &rpc.GetStudentGradesRequest{})
	require.NoError(t, err)
	assert.Equal(t, "s1", mine.StudentID)
	require.Len(t, mine.Grades, 1)
	assert.Equal(t, up.GradeID, mine.Grades[0].GradeID)

	roster, err := srv.GetCourseGrades(facultyCtx, &rpc.GetCourseGradesRequest{CourseID: "CS101"})
	require.NoError(t, err)
	assert.Len(t, roster.Grades, 1)

	_, err = srv.GetEnrolledCoursesWithGrades(facultyCtx, &rpc.TranscriptRequest{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = srv.GetEnrolledCoursesWithGrades(ctx, &rpc.TranscriptRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_TranscriptUnavailable(t *testing.T) {
	f := setup(t)
	down := &fakeEnrollments{err: server.ErrDependencyUnavailable}
	srv := NewServer(f.svc, NewAggregator(down, f.grades), f.logger)

	_, err := srv.GetEnrolledCoursesWithGrades(auth.WithAuth(context.Background(), caller("s1", auth.RoleStudent)), &rpc.TranscriptRequest{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, rpc.ReasonDependencyUnavailable, rpc.ReasonOf(err))
}
