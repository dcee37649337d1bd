package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/authz"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const surface = "grpc"

// authorize applies the method policy to the bearer token carried in the
// "authorization" metadata and returns a context holding the verified
// claims.
func (s *GRPCServer) authorize(ctx context.Context, fullMethod string) (context.Context, error) {
	req, ok := s.policy.lookup(fullMethod)
	if !ok {
		s.metrics.Decision(surface, "forbidden")
		s.logger.Warn(ctx, "method not in policy", "method", fullMethod)
		return nil, status.Error(codes.PermissionDenied, "method not allowed")
	}

	token, hasToken := bearerFromMetadata(ctx)

	if req.IsPublic() {
		if hasToken {
			if claims, err := s.tokens.ValidateToken(token); err == nil {
				ctx = authz.BindClaims(ctx, claims)
			}
		}
		return ctx, nil
	}

	if !hasToken {
		s.metrics.TokenValidation(surface, "missing")
		s.metrics.Decision(surface, "unauthenticated")
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.tokens.ValidateToken(token)
	s.metrics.TokenValidation(surface, auth.Reason(err))
	if err != nil {
		s.metrics.Decision(surface, "unauthenticated")
		s.logger.Debug(ctx, "token rejected", "reason", auth.Reason(err), "method", fullMethod)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if err := authz.Authorize(claims, req); err != nil {
		if errors.Is(err, common.ErrorForbidden) {
			s.metrics.Decision(surface, "forbidden")
			s.logger.Warn(ctx, "access denied", "subject", claims.Subject, "role", string(claims.Role), "method", fullMethod)
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		s.metrics.Decision(surface, "unauthenticated")
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	s.metrics.Decision(surface, "allow")
	return authz.BindClaims(ctx, claims), nil
}

func bearerFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get(common.AuthorizationHeaderName) {
		if token, ok := authz.ParseBearer(v); ok {
			return token, true
		}
	}
	return "", false
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authorize(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

// authStream swaps in the authorized context.
type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) accessTokenStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authorize(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
}
