// ABOUTME: Tests for the JSON codec, status reasons and request validation
// ABOUTME: Exercises a real server over bufconn using a hand-written descriptor

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeCatalog struct {
	lastMD metadata.MD
}

func (f *fakeCatalog) GetCourse(ctx context.Context, req *GetCourseRequest) (*GetCourseResponse, error) {
	f.lastMD, _ = metadata.FromIncomingContext(ctx)
	if req.CourseID != "CS101" {
		return nil, Error(codes.NotFound, ReasonCourseNotFound, "course not found")
	}
	return &GetCourseResponse{Course: CourseInfo{CourseID: "CS101", Name: "Intro", Capacity: 30, Enrolled: 15, IsOpen: true}}, nil
}

func (f *fakeCatalog) ListCourses(ctx context.Context, req *ListCoursesRequest) (*ListCoursesResponse, error) {
	return &ListCoursesResponse{}, nil
}

func (f *fakeCatalog) ClaimCourse(ctx context.Context, req *ClaimCourseRequest) (*ClaimCourseResponse, error) {
	panic("boom")
}

func startCatalog(t *testing.T, impl CatalogServer) *CatalogClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoveryInterceptor(discardLogger()),
		ValidationInterceptor(),
	))
	RegisterCatalogServer(srv, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewCatalogClient(conn)
}

func TestRoundTripOverJSONCodec(t *testing.T) {
	fake := &fakeCatalog{}
	client := startCatalog(t, fake)

	ctx := WithBearer(context.Background(), "tok")
	resp, err := client.GetCourse(ctx, &GetCourseRequest{CourseID: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, int32(30), resp.Course.Capacity)
	assert.Equal(t, int32(15), resp.Course.Enrolled)
	assert.True(t, resp.Course.IsOpen)
	assert.Equal(t, []string{"Bearer tok"}, fake.lastMD.Get("authorization"))
}

func TestErrorReasonSurvivesTheWire(t *testing.T) {
	client := startCatalog(t, &fakeCatalog{})

	_, err := client.GetCourse(context.Background(), &GetCourseRequest{CourseID: "XX999"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, ReasonCourseNotFound, ReasonOf(err))
	assert.False(t, IsTransportFailure(err))
}

func TestValidationRejectsMissingFields(t *testing.T) {
	client := startCatalog(t, &fakeCatalog{})

	_, err := client.GetCourse(context.Background(), &GetCourseRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, ReasonInvalidArgument, ReasonOf(err))
	assert.Contains(t, status.Convert(err).Message(), "course_id")
}

func TestRecoveryTurnsPanicIntoInternal(t *testing.T) {
	client := startCatalog(t, &fakeCatalog{})

	_, err := client.ClaimCourse(context.Background(), &ClaimCourseRequest{CourseID: "CS101"})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, ReasonInternal, ReasonOf(err))
}

func TestReasonOfPlainErrors(t *testing.T) {
	assert.Empty(t, ReasonOf(nil))
	assert.Empty(t, ReasonOf(errors.New("plain")))
	assert.Empty(t, ReasonOf(status.Error(codes.NotFound, "no details")))
}

func TestIsTransportFailure(t *testing.T) {
	assert.False(t, IsTransportFailure(nil))
	assert.True(t, IsTransportFailure(errors.New("dial failed")))
	assert.True(t, IsTransportFailure(status.Error(codes.Unavailable, "down")))
	assert.True(t, IsTransportFailure(status.Error(codes.DeadlineExceeded, "slow")))
	assert.False(t, IsTransportFailure(status.Error(codes.PermissionDenied, "no")))
}

func TestTimeoutInterceptorAppliesDeadline(t *testing.T) {
	intercept := TimeoutInterceptor(50 * time.Millisecond)
	var sawDeadline bool
	err := intercept(context.Background(), "/x/y", nil, nil, nil,
		func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			_, sawDeadline = ctx.Deadline()
			return nil
		})
	require.NoError(t, err)
	assert.True(t, sawDeadline)
}

func TestTokenOf(t *testing.T) {
	assert.Equal(t, "abc", TokenOf(&EnrollRequest{Token: "abc"}))
	assert.Empty(t, TokenOf(&ListCoursesRequest{}))
}

func TestCodecHandlesProtoMessages(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)

	data, err := codec.Marshal(&errdetails.ErrorInfo{Reason: ReasonCourseFull, Domain: ErrorDomain})
	require.NoError(t, err)
	var plain map[string]any
	require.NoError(t, json.Unmarshal(data, &plain))
	assert.Equal(t, "COURSE_FULL", plain["reason"])

	var info errdetails.ErrorInfo
	require.NoError(t, codec.Unmarshal(data, &info))
	assert.Equal(t, ReasonCourseFull, info.GetReason())
	assert.Equal(t, ErrorDomain, info.GetDomain())
}
