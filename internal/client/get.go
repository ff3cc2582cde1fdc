package client

import (
	"context"
	"errors"
	"io"

	"github.com/virtbridge/vmcourier/internal/common"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// Get pulls the file at remotePath out of the guest into localPath. The
// destination is created (and truncated) before the call is issued, so
// an empty remote file still lands as an empty local one and an
// uncreatable destination fails without touching the agent.
//
// The returned error is the translated terminal status; the Result
// carries the raw status and the byte count for callers that record
// outcomes.
func (c *Client) Get(ctx context.Context, remotePath, localPath string) (Result, error) {
	res := Result{Status: wire.StatusOK}

	dest, err := c.platform.Create(localPath)
	if err != nil {
		c.logger.Error(ctx, "local create failed", "path", localPath, "error", err)
		res.Status = wire.StatusClientCreateFile
		return res, common.Translate(res.Status)
	}
	defer func() { _ = dest.Close() }()

	stream, err := c.courier.Get(ctx, &wire.GetRequest{SourcePath: remotePath})
	if err != nil {
		res.Status = wire.StatusGRPCFailure
		return res, common.Translate(res.Status)
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if res.Status == wire.StatusOK {
				res.Status = wire.StatusGRPCFailure
			}
			break
		}
		if resp.Status != wire.StatusOK {
			if res.Status == wire.StatusOK {
				res.Status = resp.Status
			}
			break
		}
		// Empty fragments are keepalives or the end marker; after a
		// local write failure the stream is only drained.
		if len(resp.Data) == 0 || res.Status != wire.StatusOK {
			continue
		}
		if _, err := dest.Write(resp.Data); err != nil {
			c.logger.Error(ctx, "local write failed", "path", localPath, "error", err)
			res.Status = wire.StatusClientFileWrite
			continue
		}
		res.Bytes += int64(len(resp.Data))
	}

	c.logger.Debug(ctx, "get finished",
		"source", remotePath, "dest", localPath,
		"bytes", res.Bytes, "status", res.Status.String())
	return res, common.Translate(res.Status)
}
