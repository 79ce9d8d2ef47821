package grpcServer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the name the health service reports for the manifest service.
const ServiceName = "tac.manifest.v1.ManifestService"

// NewServer builds the gRPC server for the manifest service with health and
// reflection registered. The returned health server starts NOT_SERVING; flip
// it with SetServingStatus once the store is reachable.
func NewServer(log logrus.FieldLogger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoverInterceptor(log),
		logInterceptor(log),
	))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s, hs
}

func logInterceptor(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithFields(logrus.Fields{
			"grpc.method":  info.FullMethod,
			"grpc.code":    status.Code(err).String(),
			"grpc.took_ms": time.Since(start).Milliseconds(),
		})
		if err != nil && status.Code(err) == codes.Internal {
			entry.WithError(err).Error("rpc failed")
		} else {
			entry.Debug("rpc complete")
		}
		return resp, err
	}
}

func recoverInterceptor(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.WithField("grpc.method", info.FullMethod).Errorf("panic in handler: %v", p)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
