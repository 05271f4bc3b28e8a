// ABOUTME: EnrollmentService descriptor, server interface and client
// ABOUTME: Enroll and drop are capacity-bounded transactions on the catalog store

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const EnrollmentServiceName = "portal.v1.EnrollmentService"

type EnrollmentServer interface {
	EnrollInCourse(context.Context, *EnrollRequest) (*EnrollResponse, error)
	DropFromCourse(context.Context, *DropRequest) (*DropResponse, error)
	GetStudentEnrollments(context.Context, *GetStudentEnrollmentsRequest) (*EnrollmentsResponse, error)
}

var EnrollmentServiceDesc = grpc.ServiceDesc{
	ServiceName: EnrollmentServiceName,
	HandlerType: (*EnrollmentServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(EnrollmentServiceName, "EnrollInCourse", func(srv any, ctx context.Context, req *EnrollRequest) (*EnrollResponse, error) {
			return srv.(EnrollmentServer).EnrollInCourse(ctx, req)
		}),
		unaryMethod(EnrollmentServiceName, "DropFromCourse", func(srv any, ctx context.Context, req *DropRequest) (*DropResponse, error) {
			return srv.(EnrollmentServer).DropFromCourse(ctx, req)
		}),
		unaryMethod(EnrollmentServiceName, "GetStudentEnrollments", func(srv any, ctx context.Context, req *GetStudentEnrollmentsRequest) (*EnrollmentsResponse, error) {
			return srv.(EnrollmentServer).GetStudentEnrollments(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portal/v1/enrollment",
}

func RegisterEnrollmentServer(s grpc.ServiceRegistrar, srv EnrollmentServer) {
	s.RegisterService(&EnrollmentServiceDesc, srv)
}

type EnrollmentClient struct {
	cc grpc.ClientConnInterface
}

func NewEnrollmentClient(cc grpc.ClientConnInterface) *EnrollmentClient {
	return &EnrollmentClient{cc: cc}
}

func (c *EnrollmentClient) EnrollInCourse(ctx context.Context, in *EnrollRequest, opts ...grpc.CallOption) (*EnrollResponse, error) {
	return invoke[EnrollResponse](ctx, c.cc, EnrollmentServiceName, "EnrollInCourse", in, opts...)
}

func (c *EnrollmentClient) DropFromCourse(ctx context.Context, in *DropRequest, opts ...grpc.CallOption) (*DropResponse, error) {
	return invoke[DropResponse](ctx, c.cc, EnrollmentServiceName, "DropFromCourse", in, opts...)
}

func (c *EnrollmentClient) GetStudentEnrollments(ctx context.Context, in *GetStudentEnrollmentsRequest, opts ...grpc.CallOption) (*EnrollmentsResponse, error) {
	return invoke[EnrollmentsResponse](ctx, c.cc, EnrollmentServiceName, "GetStudentEnrollments", in, opts...)
}
