// Package netx parses transport endpoints and opens them. The agent
// listens and the client dials through the same Endpoint type, so the
// vsock production path and the tcp/unix development paths stay
// interchangeable everywhere above this layer.
package netx

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/virtbridge/vmcourier/internal/wire"
)

// CIDAny listens on every local context id, the usual agent setup.
const CIDAny = unix.VMADDR_CID_ANY

// Endpoint is a parsed transport address:
//
//	vsock://<cid>:<port>   vsock://3:2280, vsock://:2280 (any-CID listen)
//	tcp://host:port        development and integration tests
//	unix:///path           development and integration tests
type Endpoint struct {
	Scheme string
	CID    uint32 // vsock
	Port   uint32 // vsock, tcp
	Host   string // tcp
	Path   string // unix
}

// ParseEndpoint parses s into an Endpoint. A vsock endpoint without a
// port gets the well-known agent port.
func ParseEndpoint(s string) (Endpoint, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
	}

	switch u.Scheme {
	case "vsock":
		ep := Endpoint{Scheme: "vsock", CID: CIDAny, Port: wire.DefaultPort}
		host, port := u.Host, ""
		if h, p, err := net.SplitHostPort(u.Host); err == nil {
			host, port = h, p
		}
		if host != "" {
			cid, err := strconv.ParseUint(host, 10, 32)
			if err != nil {
				return Endpoint{}, fmt.Errorf("endpoint %q: bad cid %q", s, host)
			}
			ep.CID = uint32(cid)
		}
		if port != "" {
			p, err := strconv.ParseUint(port, 10, 32)
			if err != nil {
				return Endpoint{}, fmt.Errorf("endpoint %q: bad port %q", s, port)
			}
			ep.Port = uint32(p)
		}
		return ep, nil

	case "tcp":
		host, port, err := net.SplitHostPort(u.Host)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
		}
		p, err := strconv.ParseUint(port, 10, 32)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint %q: bad port %q", s, port)
		}
		return Endpoint{Scheme: "tcp", Host: host, Port: uint32(p)}, nil

	case "unix":
		if u.Path == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q: empty socket path", s)
		}
		return Endpoint{Scheme: "unix", Path: u.Path}, nil

	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unknown scheme %q", s, u.Scheme)
	}
}

func (e Endpoint) String() string {
	switch e.Scheme {
	case "vsock":
		if e.CID == CIDAny {
			return fmt.Sprintf("vsock://:%d", e.Port)
		}
		return fmt.Sprintf("vsock://%d:%d", e.CID, e.Port)
	case "tcp":
		return fmt.Sprintf("tcp://%s", net.JoinHostPort(e.Host, strconv.FormatUint(uint64(e.Port), 10)))
	case "unix":
		return "unix://" + e.Path
	}
	return ""
}

// Listen opens the endpoint for accepting connections. A stale unix
// socket file from a previous run is removed first.
func (e Endpoint) Listen() (net.Listener, error) {
	switch e.Scheme {
	case "vsock":
		l, err := vsock.Listen(e.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", e, err)
		}
		return l, nil
	case "tcp":
		l, err := net.Listen("tcp", net.JoinHostPort(e.Host, strconv.FormatUint(uint64(e.Port), 10)))
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", e, err)
		}
		return l, nil
	case "unix":
		if _, err := os.Stat(e.Path); err == nil {
			_ = os.Remove(e.Path)
		}
		l, err := net.Listen("unix", e.Path)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", e, err)
		}
		return l, nil
	}
	return nil, fmt.Errorf("listen: unknown scheme %q", e.Scheme)
}

// DialConn opens one raw connection to the endpoint.
func (e Endpoint) DialConn(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch e.Scheme {
	case "vsock":
		if e.CID == CIDAny {
			return nil, fmt.Errorf("dial %s: a cid is required", e)
		}
		c, err := vsock.Dial(e.CID, e.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", e, err)
		}
		return c, nil
	case "tcp":
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(e.Host, strconv.FormatUint(uint64(e.Port), 10)))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", e, err)
		}
		return c, nil
	case "unix":
		var d net.Dialer
		c, err := d.DialContext(ctx, "unix", e.Path)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", e, err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("dial: unknown scheme %q", e.Scheme)
}

// WaitReachable probes the endpoint with capped exponential backoff
// until a connection succeeds. The guest agent may still be booting
// when the first operation is issued; this is the only retry loop in
// the client stack.
func (e Endpoint) WaitReachable(ctx context.Context, attempts uint64, base time.Duration) error {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.WithMaxRetries(attempts, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		conn, err := e.DialConn(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		return conn.Close()
	})
}

// Dial returns a gRPC connection to the endpoint carrying the CBOR
// codec on every call. The endpoint is probed first (see
// WaitReachable); the returned connection then redials through the
// same raw dialer as needed.
func Dial(ctx context.Context, e Endpoint, attempts uint64, base time.Duration) (*grpc.ClientConn, error) {
	if err := e.WaitReachable(ctx, attempts, base); err != nil {
		return nil, fmt.Errorf("agent not reachable at %s: %w", e, err)
	}
	conn, err := grpc.NewClient("passthrough:///"+e.String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return e.DialConn(ctx)
		}),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", e, err)
	}
	return conn, nil
}
