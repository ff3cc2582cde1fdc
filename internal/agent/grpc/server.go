// Package grpc carries the agent side of the courier protocol: the
// gRPC server plus the Get, Put and Exec call handlers. Each accepted
// call runs in the goroutine the substrate hands it; Exec adds exactly
// one more goroutine for the stdin pump, keeping every stream at one
// sender and one receiver.
package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/netx"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// pollInterval paces non-blocking reads and doubles as the keepalive
// cadence when a source has nothing to deliver.
const pollInterval = 100 * time.Millisecond

// stopTimeout bounds how long draining streams can hold up shutdown
// before the server is stopped hard.
const stopTimeout = 10 * time.Second

type Server struct {
	endpoint     netx.Endpoint
	fragmentSize int
	platform     platform.Platform
	logger       logging.Logger
}

func NewServer(ep netx.Endpoint, fragmentSize int, plat platform.Platform, l logging.Logger) (*Server, error) {
	if fragmentSize <= 0 {
		fragmentSize = wire.DefaultFragmentSize
	}
	return &Server{
		endpoint:     ep,
		fragmentSize: fragmentSize,
		platform:     plat,
		logger:       l.With("module", "agent_grpc"),
	}, nil
}

// Run serves until ctx is cancelled, then stops gracefully. It returns
// only after the listener is closed.
func (s *Server) Run(ctx context.Context) error {

	listen, err := s.endpoint.Listen()
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainStreamInterceptor(s.callLogInterceptor))

	wire.RegisterCourierServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping gRPC server...")

		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(stopTimeout):
			s.logger.Warn(ctx, "graceful stop timed out, stopping hard")
			srv.Stop()
		}
	}()

	s.logger.Info(ctx, "starting gRPC server", "endpoint", s.endpoint.String(), "fragment_size", s.fragmentSize)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
