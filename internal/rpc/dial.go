// ABOUTME: Client connection helpers shared by portalctl and service-to-service calls
// ABOUTME: JSON content-subtype, bounded per-call deadline, no transparent retries

package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// DefaultCallTimeout bounds outgoing calls that arrive without a deadline.
const DefaultCallTimeout = 5 * time.Second

// Dial creates a client connection to addr. Every call uses the JSON codec
// and is bounded by callTimeout when the caller did not set a deadline.
// Extra options are appended after the defaults.
func Dial(addr string, callTimeout time.Duration, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDisableRetry(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		grpc.WithChainUnaryInterceptor(TimeoutInterceptor(callTimeout)),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

// TimeoutInterceptor applies d to outgoing calls whose context has no deadline.
func TimeoutInterceptor(d time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// WithBearer attaches token as "authorization: Bearer <token>" metadata.
func WithBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
