package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/kazu-apps/carenote-sync/internal/auth"
	"github.com/kazu-apps/carenote-sync/internal/limiter"
	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/metrics"
	pb "github.com/kazu-apps/carenote-sync/internal/rpc/carenotev1"
)

// LoggingUnary logs one line per call and counts it in m (nil disables counting).
func LoggingUnary(log *zap.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, payloads never reach the log
		log.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		m.Request(info.FullMethod, code.String())
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

const healthPrefix = "/grpc.health.v1."

// AuthUnary verifies the bearer token and stores the principal in context.
// Health checks pass through unauthenticated.
func AuthUnary(signKey []byte) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		p, err := auth.Parse(signKey, tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return next(WithPrincipal(ctx, p), req)
	}
}

// writeMethods are the calls that count against a member's request budget.
var writeMethods = map[string]bool{
	pb.Documents_Put_FullMethodName:               true,
	pb.Entitlements_VerifyPurchase_FullMethodName: true,
}

// LimitUnary rejects writes beyond the member's budget with ResourceExhausted.
// It must run after AuthUnary.
func LimitUnary(lim limiter.Limiter, log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !writeMethods[info.FullMethod] {
			return next(ctx, req)
		}
		p, ok := PrincipalFromCtx(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		allowed, wait, err := lim.Allow(ctx, limiter.HashSubject(p.MemberID.String()))
		if err != nil {
			log.Warn("limiter unavailable", append([]zap.Field{zap.String("method", info.FullMethod)}, logging.ErrorFields(err)...)...)
			return nil, status.Error(codes.Unavailable, "try again later")
		}
		if !allowed {
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.Itoa(int(wait.Seconds())+1)))
			return nil, status.Error(codes.ResourceExhausted, "rate limited")
		}
		return next(ctx, req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
