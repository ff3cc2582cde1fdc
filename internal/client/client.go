// Package client implements the host side of the courier protocol: one
// call state machine per verb, all sharing a single gRPC connection.
//
// Get and Put run entirely in the calling goroutine. Exec splits into a
// sending and a receiving goroutine so that a stalled stdin source can
// never hold up command output; each stream still has at most one
// sender and one receiver.
package client

import (
	"time"

	"google.golang.org/grpc"

	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// pollInterval paces local non-blocking reads between keepalives.
const pollInterval = 100 * time.Millisecond

// Client drives courier calls against one agent. It does not own the
// connection; the caller dials (netx.Dial) and closes it.
type Client struct {
	courier      wire.CourierClient
	platform     platform.Platform
	logger       logging.Logger
	fragmentSize int
}

// New wraps an established connection. A fragmentSize of zero selects
// wire.DefaultFragmentSize.
func New(conn grpc.ClientConnInterface, plat platform.Platform, logger logging.Logger, fragmentSize int) *Client {
	if fragmentSize <= 0 {
		fragmentSize = wire.DefaultFragmentSize
	}
	return &Client{
		courier:      wire.NewCourierClient(conn),
		platform:     plat,
		logger:       logger.With("module", "client"),
		fragmentSize: fragmentSize,
	}
}

// Result is the outcome of a finished transfer: the terminal status and
// how many payload bytes made it across before the call ended.
type Result struct {
	Status wire.OperationStatus
	Bytes  int64
}
