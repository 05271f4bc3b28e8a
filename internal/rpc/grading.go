// ABOUTME: GradingService descriptor, server interface and client
// ABOUTME: Grade upload, grade listings and the student transcript view

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const GradingServiceName = "portal.v1.GradingService"

type GradingServer interface {
	UploadGrade(context.Context, *UploadGradeRequest) (*UploadGradeResponse, error)
	GetStudentGrades(context.Context, *GetStudentGradesRequest) (*GradesResponse, error)
	GetCourseGrades(context.Context, *GetCourseGradesRequest) (*CourseGradesResponse, error)
	GetEnrolledCoursesWithGrades(context.Context, *TranscriptRequest) (*TranscriptResponse, error)
}

var GradingServiceDesc = grpc.ServiceDesc{
	ServiceName: GradingServiceName,
	HandlerType: (*GradingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(GradingServiceName, "UploadGrade", func(srv any, ctx context.Context, req *UploadGradeRequest) (*UploadGradeResponse, error) {
			return srv.(GradingServer).UploadGrade(ctx, req)
		}),
		unaryMethod(GradingServiceName, "GetStudentGrades", func(srv any, ctx context.Context, req *GetStudentGradesRequest) (*GradesResponse, error) {
			return srv.(GradingServer).GetStudentGrades(ctx, req)
		}),
		unaryMethod(GradingServiceName, "GetCourseGrades", func(srv any, ctx context.Context, req *GetCourseGradesRequest) (*CourseGradesResponse, error) {
			return srv.(GradingServer).GetCourseGrades(ctx, req)
		}),
		unaryMethod(GradingServiceName, "GetEnrolledCoursesWithGrades", func(srv any, ctx context.Context, req *TranscriptRequest) (*TranscriptResponse, error) {
			return srv.(GradingServer).GetEnrolledCoursesWithGrades(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portal/v1/grading",
}

func RegisterGradingServer(s grpc.ServiceRegistrar, srv GradingServer) {
	s.RegisterService(&GradingServiceDesc, srv)
}

type GradingClient struct {
	cc grpc.ClientConnInterface
}

func NewGradingClient(cc grpc.ClientConnInterface) *GradingClient {
	return &GradingClient{cc: cc}
}

func (c *GradingClient) UploadGrade(ctx context.Context, in *UploadGradeRequest, opts ...grpc.CallOption) (*UploadGradeResponse, error) {
	return invoke[UploadGradeResponse](ctx, c.cc, GradingServiceName, "UploadGrade", in, opts...)
}

func (c *GradingClient) GetStudentGrades(ctx context.Context, in *GetStudentGradesRequest, opts ...grpc.CallOption) (*GradesResponse, error) {
	return invoke[GradesResponse](ctx, c.cc, GradingServiceName, "GetStudentGrades", in, opts...)
}

func (c *GradingClient) GetCourseGrades(ctx context.Context, in *GetCourseGradesRequest, opts ...grpc.CallOption) (*CourseGradesResponse, error) {
	return invoke[CourseGradesResponse](ctx, c.cc, GradingServiceName, "GetCourseGrades", in, opts...)
}

func (c *GradingClient) GetEnrolledCoursesWithGrades(ctx context.Context, in *TranscriptRequest, opts ...grpc.CallOption) (*TranscriptResponse, error) {
	return invoke[TranscriptResponse](ctx, c.cc, GradingServiceName, "GetEnrolledCoursesWithGrades", in, opts...)
}
