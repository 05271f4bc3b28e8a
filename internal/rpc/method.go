// ABOUTME: Generic helpers that build gRPC method descriptors and client calls
// ABOUTME: Replaces generated stubs for the JSON-coded portal services

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// fullMethod returns the "/service/method" path used on the wire.
func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unaryMethod builds a grpc.MethodDesc that decodes Req, runs the interceptor
// chain and dispatches to call.
func unaryMethod[Req, Resp any](service, method string, call func(srv any, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	path := fullMethod(service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: path,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// invoke performs a unary call with the JSON content-subtype forced on.
func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(service, method), in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}
