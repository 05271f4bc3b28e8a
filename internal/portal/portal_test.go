// ABOUTME: End-to-end tests running all four services in-process over bufconn
// ABOUTME: Covers the CS101 enrollment scenario, role enforcement and an unreachable token authority

package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/config"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "portal-test-secret-32-bytes-long"

type clients struct {
	identity   *rpc.IdentityClient
	catalog    *rpc.CatalogClient
	enrollment *rpc.EnrollmentClient
	grading    *rpc.GradingClient
}

type cluster struct {
	cfg       *config.Config
	listeners map[string]*bufconn.Listener
	dialOpt   grpc.DialOption
}

func newCluster(t *testing.T, validation string) *cluster {
	t.Helper()
	cfg, err := config.Default(testSecret)
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Auth.Validation = validation
	cfg.Auth.IdentityAddr = "passthrough:///identity"
	cfg.Auth.ValidateTimeout = time.Second
	cfg.Identity.BcryptCost = 4
	cfg.Identity.Database.DSN = filepath.Join(dir, "identity.db")
	cfg.Catalog.Database.DSN = filepath.Join(dir, "catalog.db")
	cfg.Enrollment.Database = cfg.Catalog.Database
	cfg.Grading.EnrollmentDatabase = cfg.Catalog.Database
	cfg.Grading.Database.DSN = filepath.Join(dir, "grades.db")
	cfg.Grading.EnrollmentAddr = "passthrough:///enrollment"

	listeners := make(map[string]*bufconn.Listener)
	for _, name := range AllServices {
		listeners[name] = bufconn.Listen(1 << 20)
	}
	dialer := grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		lis, ok := listeners[addr]
		if !ok {
			return nil, errors.New("no such service: " + addr)
		}
		return lis.DialContext(ctx)
	})
	return &cluster{cfg: cfg, listeners: listeners, dialOpt: dialer}
}

// start runs the named services until the test ends.
func (c *cluster) start(t *testing.T, names ...string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := NewRuntime(Options{Config: c.cfg, Logger: logger, DialOptions: []grpc.DialOption{c.dialOpt}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rt.runAll(ctx, names, func(ctx context.Context, name string, srv *server.Server) error {
			return srv.Serve(ctx, c.listeners[name], nil)
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("services did not stop")
		}
	})
}

func (c *cluster) clients(t *testing.T) clients {
	t.Helper()
	conn := func(name string) *grpc.ClientConn {
		cc, err := rpc.Dial("passthrough:///"+name, 5*time.Second, c.dialOpt)
		require.NoError(t, err)
		t.Cleanup(func() { _ = cc.Close() })
		return cc
	}
	return clients{
		identity:   rpc.NewIdentityClient(conn(ServiceIdentity)),
		catalog:    rpc.NewCatalogClient(conn(ServiceCatalog)),
		enrollment: rpc.NewEnrollmentClient(conn(ServiceEnrollment)),
		grading:    rpc.NewGradingClient(conn(ServiceGrading)),
	}
}

func requireReason(t *testing.T, err error, code codes.Code, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, status.Code(err), "status: %v", err)
	assert.Equal(t, reason, rpc.ReasonOf(err))
}

func enrolledIn(t *testing.T, c clients, courseID string) int32 {
	t.Helper()
	resp, err := c.catalog.GetCourse(context.Background(), &rpc.GetCourseRequest{CourseID: courseID})
	require.NoError(t, err)
	return resp.Course.Enrolled
}

func TestCS101Scenario(t *testing.T) {
	for _, mode := range []string{config.ValidationLocal, config.ValidationDelegated} {
		t.Run(mode, func(t *testing.T) {
			cl := newCluster(t, mode)
			cl.start(t, AllServices...)
			c := cl.clients(t)
			ctx := context.Background()

			stu, err := c.identity.Register(ctx, &rpc.RegisterRequest{Username: "stu_1", Password: "password-1"})
			require.NoError(t, err)
			prof, err := c.identity.Register(ctx, &rpc.RegisterRequest{Username: "prof_b", Password: "password-2", Role: "faculty"})
			require.NoError(t, err)

			list, err := c.catalog.ListCourses(ctx, &rpc.ListCoursesRequest{})
			require.NoError(t, err)
			require.Len(t, list.Courses, 4)
			assert.Equal(t, int32(15), enrolledIn(t, c, "CS101"))

			_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{Token: stu.Token, CourseID: "CS101"})
			require.NoError(t, err)
			assert.Equal(t, int32(16), enrolledIn(t, c, "CS101"))

			_, err = c.enrollment.EnrollInCourse(rpc.WithBearer(ctx, stu.Token), &rpc.EnrollRequest{CourseID: "CS101"})
			requireReason(t, err, codes.AlreadyExists, rpc.ReasonAlreadyEnrolled)
			assert.Equal(t, int32(16), enrolledIn(t, c, "CS101"))

			_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{Token: stu.Token, CourseID: "MA202"})
			requireReason(t, err, codes.FailedPrecondition, rpc.ReasonCourseFull)
			_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{Token: stu.Token, CourseID: "PH301"})
			requireReason(t, err, codes.FailedPrecondition, rpc.ReasonCourseClosed)
			_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{Token: stu.Token, CourseID: "XX999"})
			requireReason(t, err, codes.NotFound, rpc.ReasonCourseNotFound)

			transcript, err := c.grading.GetEnrolledCoursesWithGrades(ctx, &rpc.TranscriptRequest{Token: stu.Token})
			require.NoError(t, err)
			assert.Equal(t, "stu_1", transcript.StudentName)
			require.Len(t, transcript.Courses, 1)
			assert.False(t, transcript.Courses[0].GradeReleased)

			up, err := c.grading.UploadGrade(ctx, &rpc.UploadGradeRequest{
				Token: prof.Token, StudentID: stu.UserID, CourseID: "CS101", Grade: "A", Semester: "Fall 2025",
			})
			require.NoError(t, err)
			assert.False(t, up.Updated)

			_, err = c.grading.UploadGrade(ctx, &rpc.UploadGradeRequest{
				Token: prof.Token, StudentID: stu.UserID, CourseID: "MA202", Grade: "B", Semester: "Fall 2025",
			})
			requireReason(t, err, codes.FailedPrecondition, rpc.ReasonNotEnrolled)

			transcript, err = c.grading.GetEnrolledCoursesWithGrades(ctx, &rpc.TranscriptRequest{Token: stu.Token})
			require.NoError(t, err)
			require.Len(t, transcript.Courses, 1)
			assert.True(t, transcript.Courses[0].GradeReleased)
			assert.Equal(t, "A", transcript.Courses[0].Grade)
			assert.Equal(t, "Introduction to Computer Science", transcript.Courses[0].CourseName)

			_, err = c.catalog.ClaimCourse(ctx, &rpc.ClaimCourseRequest{Token: prof.Token, CourseID: "CS101"})
			require.NoError(t, err)
			_, err = c.catalog.ClaimCourse(ctx, &rpc.ClaimCourseRequest{Token: prof.Token, CourseID: "HI105"})
			requireReason(t, err, codes.AlreadyExists, rpc.ReasonAlreadyClaimed)

			_, err = c.enrollment.DropFromCourse(ctx, &rpc.DropRequest{Token: stu.Token, CourseID: "CS101"})
			require.NoError(t, err)
			assert.Equal(t, int32(15), enrolledIn(t, c, "CS101"))
			_, err = c.enrollment.DropFromCourse(ctx, &rpc.DropRequest{Token: stu.Token, CourseID: "CS101"})
			requireReason(t, err, codes.FailedPrecondition, rpc.ReasonNotEnrolled)
			assert.Equal(t, int32(15), enrolledIn(t, c, "CS101"))
		})
	}
}

func TestRoleEnforcement(t *testing.T) {
	cl := newCluster(t, config.ValidationDelegated)
	cl.start(t, AllServices...)
	c := cl.clients(t)
	ctx := context.Background()

	stu, err := c.identity.Register(ctx, &rpc.RegisterRequest{Username: "stu_2", Password: "password-1"})
	require.NoError(t, err)
	prof, err := c.identity.Register(ctx, &rpc.RegisterRequest{Username: "prof_c", Password: "password-2", Role: "faculty"})
	require.NoError(t, err)

	_, err = c.grading.UploadGrade(ctx, &rpc.UploadGradeRequest{
		Token: stu.Token, StudentID: stu.UserID, CourseID: "CS101", Grade: "A", Semester: "Fall 2025",
	})
	requireReason(t, err, codes.PermissionDenied, rpc.ReasonForbidden)

	_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{Token: prof.Token, CourseID: "CS101"})
	requireReason(t, err, codes.PermissionDenied, rpc.ReasonForbidden)

	_, err = c.catalog.ClaimCourse(ctx, &rpc.ClaimCourseRequest{Token: stu.Token, CourseID: "CS101"})
	requireReason(t, err, codes.PermissionDenied, rpc.ReasonForbidden)

	_, err = c.grading.GetEnrolledCoursesWithGrades(ctx, &rpc.TranscriptRequest{Token: prof.Token})
	requireReason(t, err, codes.PermissionDenied, rpc.ReasonForbidden)

	_, err = c.grading.GetCourseGrades(ctx, &rpc.GetCourseGradesRequest{Token: stu.Token, CourseID: "CS101"})
	requireReason(t, err, codes.PermissionDenied, rpc.ReasonForbidden)

	_, err = c.identity.ListStudents(ctx, &rpc.ListStudentsRequest{Token: stu.Token})
	requireReason(t, err, codes.PermissionDenied, rpc.ReasonForbidden)

	students, err := c.identity.ListStudents(ctx, &rpc.ListStudentsRequest{Token: prof.Token})
	require.NoError(t, err)
	require.Len(t, students.Students, 1)
	assert.Equal(t, stu.UserID, students.Students[0].StudentID)

	_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{CourseID: "CS101"})
	requireReason(t, err, codes.Unauthenticated, rpc.ReasonTokenMissing)

	_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{Token: "garbage", CourseID: "CS101"})
	requireReason(t, err, codes.Unauthenticated, rpc.ReasonTokenMalformed)

	past := time.Now().Add(-2 * time.Hour)
	old, err := auth.NewLocalValidator([]byte(testSecret), auth.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, _, err := old.Generate(stu.UserID, "stu_2", auth.RoleStudent, time.Hour)
	require.NoError(t, err)
	_, err = c.enrollment.EnrollInCourse(ctx, &rpc.EnrollRequest{Token: expired, CourseID: "CS101"})
	requireReason(t, err, codes.Unauthenticated, rpc.ReasonTokenExpired)

	assert.Equal(t, int32(15), enrolledIn(t, c, "CS101"))
}

func TestAuthorityUnavailable(t *testing.T) {
	cl := newCluster(t, config.ValidationDelegated)
	require.NoError(t, cl.listeners[ServiceIdentity].Close())
	cl.start(t, ServiceCatalog)
	c := cl.clients(t)
	ctx := context.Background()

	// Public reads do not need the authority.
	assert.Equal(t, int32(15), enrolledIn(t, c, "CS101"))

	_, err := c.catalog.ClaimCourse(ctx, &rpc.ClaimCourseRequest{Token: "any-token", CourseID: "CS101"})
	requireReason(t, err, codes.Unavailable, rpc.ReasonAuthorityUnavailable)
}

func TestParseServices(t *testing.T) {
	all, err := ParseServices([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, AllServices, all)

	some, err := ParseServices([]string{"grading", "catalog", "grading"})
	require.NoError(t, err)
	assert.Equal(t, []string{"grading", "catalog"}, some)

	_, err = ParseServices([]string{"billing"})
	assert.ErrorIs(t, err, ErrUnknownService)
}
