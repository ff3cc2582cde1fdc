package grpc

import (
	"errors"
	"io"

	"github.com/virtbridge/vmcourier/internal/common"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// Get streams the requested file to the client in fragments. Local
// failures become a protocol status on the stream; only a dead
// transport ends the call without one. The trailing empty OK fragment
// is the end-of-file boundary.
func (s *Server) Get(req *wire.GetRequest, stream wire.Courier_GetServer) error {
	ctx := stream.Context()
	log := s.callLogger(ctx).With("source", req.SourcePath)

	if !s.platform.FileExists(req.SourcePath) {
		log.Warn(ctx, "source missing")
		return stream.Send(&wire.GetResponse{Status: wire.StatusServerMissingFile})
	}

	f, err := s.platform.OpenRead(req.SourcePath)
	if err != nil {
		log.Error(ctx, "open failed", "error", err)
		return stream.Send(&wire.GetResponse{Status: wire.StatusServerFileRead})
	}
	defer f.Close()

	var sent int
	buf := make([]byte, s.fragmentSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := f.Read(buf)
		switch {
		case errors.Is(err, common.ErrWouldBlock):
			// Nothing ready; keep the stream visibly alive.
			if err := stream.Send(&wire.GetResponse{Status: wire.StatusOK}); err != nil {
				return err
			}
			_ = s.platform.PollRead([]platform.File{f}, pollInterval)
			continue
		case errors.Is(err, io.EOF):
			log.Debug(ctx, "transfer complete", "bytes", sent)
			return stream.Send(&wire.GetResponse{Status: wire.StatusOK})
		case err != nil:
			log.Error(ctx, "read failed", "error", err)
			return stream.Send(&wire.GetResponse{Status: wire.StatusServerFileRead})
		}

		if err := stream.Send(&wire.GetResponse{Status: wire.StatusOK, Data: buf[:n]}); err != nil {
			return err
		}
		sent += n
	}
}
