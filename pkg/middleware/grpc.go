package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/firebase-jwt/pkg/verifier"
)

// MetadataAuthorization is the gRPC metadata key holding the bearer token.
const MetadataAuthorization = "authorization"

// UnaryServerInterceptor verifies the bearer token in the "authorization"
// metadata of unary calls. Calls without a valid token fail with
// codes.Unauthenticated before the handler runs; calls whose token cannot
// be checked because the key source failed get codes.Unavailable.
func UnaryServerInterceptor(v verifier.Verifier, opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := verifyGRPC(ctx, v, o)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor.
func StreamServerInterceptor(v verifier.Verifier, opts ...Option) grpc.StreamServerInterceptor {
	o := newOptions(opts)
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := verifyGRPC(ss.Context(), v, o)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// verifyGRPC reads the first authorization value from the incoming
// metadata and verifies it. gRPC metadata keys are lower case, so the
// lookup uses MetadataAuthorization rather than HeaderAuthorization.
func verifyGRPC(ctx context.Context, v verifier.Verifier, o options) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		o.reject(ctx, "grpc", "missing_metadata", nil)
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get(MetadataAuthorization)
	if len(values) == 0 {
		o.reject(ctx, "grpc", "missing_credentials", nil)
		return ctx, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	raw := ExtractBearerToken(values[0])
	if raw == "" {
		o.reject(ctx, "grpc", "missing_credentials", nil)
		return ctx, status.Error(codes.Unauthenticated, "invalid authorization format")
	}

	tok, err := v.Verify(ctx, raw)
	if err != nil {
		o.reject(ctx, "grpc", string(v.Kind()), err)
		if _, ok := serverFault(err); ok {
			return ctx, status.Error(codes.Unavailable, "token verification unavailable")
		}
		return ctx, status.Error(codes.Unauthenticated, "token verification failed")
	}
	return ContextWithToken(ctx, tok), nil
}

// wrappedServerStream overrides Context so handlers see the verified token.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the context carrying the verified token.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
