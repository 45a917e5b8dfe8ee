package ratelimiter

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/lowc1012/tiered-rate-limiter/pkg/utils"
)

// UnaryServerInterceptor guards unary RPCs. presetFor maps a full method name
// to a preset; an empty result leaves the method unlimited.
//
// Denials become codes.ResourceExhausted (codes.Unavailable when a fail-closed
// preset could not reach the store) and the X-RateLimit-* / Retry-After values
// are sent as response header metadata.
func (m *Manager) UnaryServerInterceptor(presetFor func(fullMethod string) string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		preset := presetFor(info.FullMethod)
		if preset == "" {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		admission, err := m.CheckRateLimit(ctx, utils.ClientIdentifierFromMetadata(md), preset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, status.FromContextError(ctx.Err()).Err()
			}
			m.logger.Error("Failed to run rate limiting", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Errorf(codes.Internal, "rate limiter error: %v", err)
		}

		if !admission.Allowed {
			if err := grpc.SetHeader(ctx, headerMetadata(admission.Denied.Headers)); err != nil {
				m.logger.Debug("Failed to send rate limit metadata",
					zap.String("method", info.FullMethod),
					zap.Error(err))
			}

			code := codes.ResourceExhausted
			if admission.Denied.Status == http.StatusServiceUnavailable {
				code = codes.Unavailable
			}
			return nil, status.Error(code, admission.Denied.Body.Error)
		}

		return handler(ctx, req)
	}
}

// PresetByMethod returns a presetFor function backed by a fixed map, falling
// back to def for methods not in it.
func PresetByMethod(methods map[string]string, def string) func(string) string {
	return func(fullMethod string) string {
		if p, ok := methods[fullMethod]; ok {
			return p
		}
		return def
	}
}

func headerMetadata(h http.Header) metadata.MD {
	md := metadata.MD{}
	for _, k := range []string{HeaderRetryAfter, HeaderRateLimitLimit, HeaderRateLimitRemaining, HeaderRateLimitReset} {
		if v := h.Get(k); v != "" {
			md.Set(strings.ToLower(k), v)
		}
	}
	return md
}
