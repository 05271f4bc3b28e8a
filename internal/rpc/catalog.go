// ABOUTME: CatalogService descriptor, server interface and client
// ABOUTME: The catalog owns course metadata, capacity and faculty claims

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const CatalogServiceName = "portal.v1.CatalogService"

type CatalogServer interface {
	GetCourse(context.Context, *GetCourseRequest) (*GetCourseResponse, error)
	ListCourses(context.Context, *ListCoursesRequest) (*ListCoursesResponse, error)
	ClaimCourse(context.Context, *ClaimCourseRequest) (*ClaimCourseResponse, error)
}

var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(CatalogServiceName, "GetCourse", func(srv any, ctx context.Context, req *GetCourseRequest) (*GetCourseResponse, error) {
			return srv.(CatalogServer).GetCourse(ctx, req)
		}),
		unaryMethod(CatalogServiceName, "ListCourses", func(srv any, ctx context.Context, req *ListCoursesRequest) (*ListCoursesResponse, error) {
			return srv.(CatalogServer).ListCourses(ctx, req)
		}),
		unaryMethod(CatalogServiceName, "ClaimCourse", func(srv any, ctx context.Context, req *ClaimCourseRequest) (*ClaimCourseResponse, error) {
			return srv.(CatalogServer).ClaimCourse(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portal/v1/catalog",
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

// Course reads are public.
var (
	MethodGetCourse   = fullMethod(CatalogServiceName, "GetCourse")
	MethodListCourses = fullMethod(CatalogServiceName, "ListCourses")
)

type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) GetCourse(ctx context.Context, in *GetCourseRequest, opts ...grpc.CallOption) (*GetCourseResponse, error) {
	return invoke[GetCourseResponse](ctx, c.cc, CatalogServiceName, "GetCourse", in, opts...)
}

func (c *CatalogClient) ListCourses(ctx context.Context, in *ListCoursesRequest, opts ...grpc.CallOption) (*ListCoursesResponse, error) {
	return invoke[ListCoursesResponse](ctx, c.cc, CatalogServiceName, "ListCourses", in, opts...)
}

func (c *CatalogClient) ClaimCourse(ctx context.Context, in *ClaimCourseRequest, opts ...grpc.CallOption) (*ClaimCourseResponse, error) {
	return invoke[ClaimCourseResponse](ctx, c.cc, CatalogServiceName, "ClaimCourse", in, opts...)
}
