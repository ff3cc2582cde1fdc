package grpc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/virtbridge/vmcourier/internal/logging"
)

type ctxKey string

const loggerKey ctxKey = "logger"

// callLogInterceptor tags every call with an operation id and logs its
// outcome and duration. The per-call logger rides the stream context so
// handlers log under the same id.
func (s *Server) callLogInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {

	log := s.logger.With("op_id", uuid.NewString(), "method", info.FullMethod)
	ctx := context.WithValue(ss.Context(), loggerKey, log)

	log.Info(ctx, "call started")
	start := time.Now()

	err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})

	if err != nil {
		log.Warn(ctx, "call failed", "error", err, "duration", time.Since(start))
	} else {
		log.Info(ctx, "call finished", "duration", time.Since(start))
	}
	return err
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

func (s *Server) callLogger(ctx context.Context) logging.Logger {
	if l, ok := ctx.Value(loggerKey).(logging.Logger); ok {
		return l
	}
	return s.logger
}
