// ABOUTME: Tests for the catalog and its gRPC handlers
// ABOUTME: Runs against a temporary SQLite course store

package catalog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "catalog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	courses, err := store.NewCourseStore(ctx, db)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(courses, logger)
	require.NoError(t, c.Seed(ctx, []store.Course{
		{ID: "CS101", Name: "Intro", Capacity: 30, Enrolled: 15, Open: true},
		{ID: "HI105", Name: "History", Capacity: 40, Open: true, FacultyID: "f-owner", FacultyUsername: "prof_a"},
	}))
	return NewServer(c, logger)
}

func asCaller(id, username string, role auth.Role) context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{
		Identity: auth.Identity{UserID: id, Username: username, Role: role},
	})
}

func TestGetAndListCourses(t *testing.T) {
	srv := setupServer(t)

	resp, err := srv.GetCourse(context.Background(), &rpc.GetCourseRequest{CourseID: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, int32(15), resp.Course.Enrolled)
	assert.True(t, resp.Course.IsOpen)

	_, err = srv.GetCourse(context.Background(), &rpc.GetCourseRequest{CourseID: "XX000"})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, rpc.ReasonCourseNotFound, rpc.ReasonOf(err))

	list, err := srv.ListCourses(context.Background(), &rpc.ListCoursesRequest{})
	require.NoError(t, err)
	require.Len(t, list.Courses, 2)
	assert.Equal(t, "prof_a", list.Courses[1].FacultyUsername)
}

func TestClaimCourse(t *testing.T) {
	srv := setupServer(t)
	faculty := asCaller("f-1", "prof_b", auth.RoleFaculty)

	_, err := srv.ClaimCourse(faculty, &rpc.ClaimCourseRequest{CourseID: "CS101"})
	require.NoError(t, err)

	resp, err := srv.GetCourse(context.Background(), &rpc.GetCourseRequest{CourseID: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, "f-1", resp.Course.FacultyID)
	assert.Equal(t, "prof_b", resp.Course.FacultyUsername)

	// Claims are terminal, even for the owner.
	_, err = srv.ClaimCourse(faculty, &rpc.ClaimCourseRequest{CourseID: "CS101"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Equal(t, rpc.ReasonAlreadyClaimed, rpc.ReasonOf(err))

	_, err = srv.ClaimCourse(faculty, &rpc.ClaimCourseRequest{CourseID: "HI105"})
	assert.Equal(t, rpc.ReasonAlreadyClaimed, rpc.ReasonOf(err))

	_, err = srv.ClaimCourse(faculty, &rpc.ClaimCourseRequest{CourseID: "XX000"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestClaimCourse_Authorization(t *testing.T) {
	srv := setupServer(t)

	_, err := srv.ClaimCourse(asCaller("s-1", "alice", auth.RoleStudent), &rpc.ClaimCourseRequest{CourseID: "CS101"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = srv.ClaimCourse(asCaller("f-1", "prof_b", auth.RoleFaculty), &rpc.ClaimCourseRequest{CourseID: "CS101", FacultyID: "f-2"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = srv.ClaimCourse(context.Background(), &rpc.ClaimCourseRequest{CourseID: "CS101"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := srv.GetCourse(context.Background(), &rpc.GetCourseRequest{CourseID: "CS101"})
	require.NoError(t, err)
	assert.Empty(t, resp.Course.FacultyID)
}
