package client

import (
	"context"
	"errors"
	"io"

	"github.com/virtbridge/vmcourier/internal/common"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// Put pushes the file at localPath into the guest at remotePath. A
// missing or unreadable source fails before any RPC is issued. The
// destination path rides on the first message only; end of upload is
// the half-close, answered by the agent's single terminal response.
//
// A failure read locally after the stream is open half-closes early and
// takes precedence over whatever the agent answers.
func (c *Client) Put(ctx context.Context, localPath, remotePath string) (Result, error) {
	res := Result{Status: wire.StatusOK}

	if !c.platform.FileExists(localPath) {
		c.logger.Warn(ctx, "local source missing", "path", localPath)
		res.Status = wire.StatusClientMissingFile
		return res, common.Translate(res.Status)
	}
	src, err := c.platform.OpenRead(localPath)
	if err != nil {
		c.logger.Error(ctx, "local open failed", "path", localPath, "error", err)
		res.Status = wire.StatusClientFileRead
		return res, common.Translate(res.Status)
	}
	defer func() { _ = src.Close() }()

	stream, err := c.courier.Put(ctx)
	if err != nil {
		res.Status = wire.StatusGRPCFailure
		return res, common.Translate(res.Status)
	}

	local := wire.StatusOK
	first := true
	buf := make([]byte, c.fragmentSize)
	for {
		n, rerr := src.Read(buf)

		if errors.Is(rerr, common.ErrWouldBlock) {
			if err := c.sendFragment(stream, &first, remotePath, nil); err != nil {
				break
			}
			_ = c.platform.PollRead([]platform.File{src}, pollInterval)
			continue
		}
		if errors.Is(rerr, io.EOF) {
			// An empty source still has to deliver the destination path.
			if first {
				_ = c.sendFragment(stream, &first, remotePath, nil)
			}
			break
		}
		if rerr != nil {
			c.logger.Error(ctx, "local read failed", "path", localPath, "error", rerr)
			local = wire.StatusClientFileRead
			break
		}

		if err := c.sendFragment(stream, &first, remotePath, buf[:n]); err != nil {
			break
		}
		res.Bytes += int64(n)
	}

	resp, cerr := stream.CloseAndRecv()
	switch {
	case local != wire.StatusOK:
		res.Status = local
	case cerr != nil:
		res.Status = wire.StatusGRPCFailure
	default:
		res.Status = resp.Status
	}

	c.logger.Debug(ctx, "put finished",
		"source", localPath, "dest", remotePath,
		"bytes", res.Bytes, "status", res.Status.String())
	return res, common.Translate(res.Status)
}

// sendFragment sends one upload fragment, attaching the destination
// path to the first message of the stream.
func (c *Client) sendFragment(stream wire.Courier_PutClient, first *bool, dest string, data []byte) error {
	req := &wire.PutRequest{Data: data}
	if *first {
		*first = false
		req.DestPath = dest
	}
	return stream.Send(req)
}
