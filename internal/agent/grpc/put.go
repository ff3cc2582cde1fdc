package grpc

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// Put receives a client-streamed upload. The destination is resolved on
// the first message; after a local failure the stream is still drained
// so the client can finish cleanly, and the failure travels back in the
// single terminal response.
func (s *Server) Put(stream wire.Courier_PutServer) error {
	ctx := stream.Context()
	log := s.callLogger(ctx)

	var (
		dest     platform.File
		status   = wire.StatusOK
		first    = true
		received int
	)
	defer func() {
		if dest != nil {
			dest.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug(ctx, "upload complete", "bytes", received, "status", status.String())
			return stream.SendAndClose(&wire.PutResponse{Status: status})
		}
		if err != nil {
			return err
		}

		if first {
			first = false
			log = log.With("dest", req.DestPath)
			dest, status = s.createDest(ctx, log, req.DestPath)
		}

		// Keepalives are empty; after a failure only drain.
		if status != wire.StatusOK || len(req.Data) == 0 {
			continue
		}

		if _, err := dest.Write(req.Data); err != nil {
			log.Error(ctx, "write failed", "error", err)
			status = wire.StatusServerFileWrite
			continue
		}
		received += len(req.Data)
	}
}

// createDest resolves and opens the upload target, creating missing
// parent directories. A directory target (existing or spelled with a
// trailing separator) is a create failure; an unopenable file is a
// write failure.
func (s *Server) createDest(ctx context.Context, log logging.Logger, path string) (platform.File, wire.OperationStatus) {
	if strings.HasSuffix(path, string(filepath.Separator)) || s.platform.DirExists(path) {
		log.Warn(ctx, "destination is a directory")
		return nil, wire.StatusServerCreateFile
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := s.platform.MkdirAll(dir); err != nil {
			log.Error(ctx, "mkdir failed", "error", err)
			return nil, wire.StatusServerCreateFile
		}
	}

	f, err := s.platform.Create(path)
	if err != nil {
		log.Error(ctx, "create failed", "error", err)
		return nil, wire.StatusServerFileWrite
	}
	return f, wire.StatusOK
}
