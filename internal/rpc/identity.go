// ABOUTME: IdentityService descriptor, server interface and client
// ABOUTME: The identity service registers users, issues tokens and validates them

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// IdentityServiceName is the fully qualified gRPC service name.
const IdentityServiceName = "portal.v1.IdentityService"

// IdentityServer is implemented by the identity service.
type IdentityServer interface {
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	ValidateToken(context.Context, *ValidateTokenRequest) (*ValidateTokenResponse, error)
	ListStudents(context.Context, *ListStudentsRequest) (*ListStudentsResponse, error)
}

// IdentityServiceDesc describes IdentityService for grpc.Server.RegisterService.
var IdentityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(IdentityServiceName, "Register", func(srv any, ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
			return srv.(IdentityServer).Register(ctx, req)
		}),
		unaryMethod(IdentityServiceName, "Login", func(srv any, ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
			return srv.(IdentityServer).Login(ctx, req)
		}),
		unaryMethod(IdentityServiceName, "ValidateToken", func(srv any, ctx context.Context, req *ValidateTokenRequest) (*ValidateTokenResponse, error) {
			return srv.(IdentityServer).ValidateToken(ctx, req)
		}),
		unaryMethod(IdentityServiceName, "ListStudents", func(srv any, ctx context.Context, req *ListStudentsRequest) (*ListStudentsResponse, error) {
			return srv.(IdentityServer).ListStudents(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portal/v1/identity",
}

// RegisterIdentityServer attaches srv to s.
func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&IdentityServiceDesc, srv)
}

// Method paths that do not require a caller identity.
var (
	MethodRegister      = fullMethod(IdentityServiceName, "Register")
	MethodLogin         = fullMethod(IdentityServiceName, "Login")
	MethodValidateToken = fullMethod(IdentityServiceName, "ValidateToken")
)

// IdentityClient calls IdentityService.
type IdentityClient struct {
	cc grpc.ClientConnInterface
}

// NewIdentityClient wraps an existing connection.
func NewIdentityClient(cc grpc.ClientConnInterface) *IdentityClient {
	return &IdentityClient{cc: cc}
}

func (c *IdentityClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, IdentityServiceName, "Register", in, opts...)
}

func (c *IdentityClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, IdentityServiceName, "Login", in, opts...)
}

func (c *IdentityClient) ValidateToken(ctx context.Context, in *ValidateTokenRequest, opts ...grpc.CallOption) (*ValidateTokenResponse, error) {
	return invoke[ValidateTokenResponse](ctx, c.cc, IdentityServiceName, "ValidateToken", in, opts...)
}

func (c *IdentityClient) ListStudents(ctx context.Context, in *ListStudentsRequest, opts ...grpc.CallOption) (*ListStudentsResponse, error) {
	return invoke[ListStudentsResponse](ctx, c.cc, IdentityServiceName, "ListStudents", in, opts...)
}
