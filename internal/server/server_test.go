// ABOUTME: Tests for the service host: interceptor chain, health endpoints and shutdown
// ABOUTME: Serves a stub catalog over bufconn with a real HTTP listener

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/config"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var testSecret = []byte("server-test-secret-32-bytes-long")

type stubCatalog struct{}

func (stubCatalog) GetCourse(ctx context.Context, req *rpc.GetCourseRequest) (*rpc.GetCourseResponse, error) {
	return &rpc.GetCourseResponse{Course: rpc.CourseInfo{CourseID: req.CourseID}}, nil
}

func (stubCatalog) ListCourses(ctx context.Context, req *rpc.ListCoursesRequest) (*rpc.ListCoursesResponse, error) {
	return &rpc.ListCoursesResponse{}, nil
}

func (stubCatalog) ClaimCourse(ctx context.Context, req *rpc.ClaimCourseRequest) (*rpc.ClaimCourseResponse, error) {
	caller := auth.MustFromContext(ctx)
	return &rpc.ClaimCourseResponse{Message: caller.UserID}, nil
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

type testHost struct {
	conn     *grpc.ClientConn
	client   *rpc.CatalogClient
	httpBase string
	cancel   context.CancelFunc
	done     chan error
}

func startHost(t *testing.T, ready func(context.Context) error) (*testHost, *auth.LocalValidator, *closeRecorder) {
	t.Helper()
	validator, err := auth.NewLocalValidator(testSecret)
	require.NoError(t, err)

	srv := New(Options{
		Name:          "catalog",
		HTTPAddr:      "127.0.0.1:0",
		Tuning:        config.ServerConfig{RequestTimeout: time.Second, MaxConcurrentStreams: 8, Workers: 2},
		Validator:     validator,
		PublicMethods: []string{rpc.MethodGetCourse, rpc.MethodListCourses},
		Ready:         ready,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	rpc.RegisterCatalogServer(srv.Registrar(), stubCatalog{})
	closer := &closeRecorder{}
	srv.OnShutdown("store", closer)

	grpcLn := bufconn.Listen(1 << 20)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, grpcLn, httpLn) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return grpcLn.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	host := &testHost{
		conn:     conn,
		client:   rpc.NewCatalogClient(conn),
		httpBase: "http://" + httpLn.Addr().String(),
		cancel:   cancel,
		done:     done,
	}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return host, validator, closer
}

func TestServer_PublicAndProtectedMethods(t *testing.T) {
	host, validator, _ := startHost(t, nil)
	ctx := context.Background()

	resp, err := host.client.GetCourse(ctx, &rpc.GetCourseRequest{CourseID: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, "CS101", resp.Course.CourseID)

	_, err = host.client.ClaimCourse(ctx, &rpc.ClaimCourseRequest{CourseID: "CS101"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, rpc.ReasonTokenMissing, rpc.ReasonOf(err))

	token, _, err := validator.Generate("f1", "prof", auth.RoleFaculty, time.Hour)
	require.NoError(t, err)
	claim, err := host.client.ClaimCourse(rpc.WithBearer(ctx, token), &rpc.ClaimCourseRequest{CourseID: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, "f1", claim.Message)
}

func TestServer_ValidationRunsAfterAuth(t *testing.T) {
	host, _, _ := startHost(t, nil)

	_, err := host.client.GetCourse(context.Background(), &rpc.GetCourseRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_GRPCHealthOverJSON(t *testing.T) {
	host, _, _ := startHost(t, nil)

	resp, err := healthpb.NewHealthClient(host.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "catalog"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	_, err = healthpb.NewHealthClient(host.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "billing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_HealthEndpoints(t *testing.T) {
	readyErr := errors.New("store down")
	var failing atomic.Bool
	host, _, _ := startHost(t, func(context.Context) error {
		if failing.Load() {
			return readyErr
		}
		return nil
	})

	get := func(path string) int {
		resp, err := http.Get(host.httpBase + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, http.StatusOK, get("/health/ready"))
	failing.Store(true)
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready"))
}

func TestServer_ShutdownClosesResources(t *testing.T) {
	host, _, closer := startHost(t, nil)

	host.cancel()
	select {
	case err := <-host.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.True(t, closer.closed)

	// Cleanup waits on done again.
	host.done <- nil
}
