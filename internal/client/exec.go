package client

import (
	"context"
	"errors"
	"io"

	"github.com/virtbridge/vmcourier/internal/common"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// ExecSpec describes one remote command invocation. The command line is
// sent verbatim and lexed on the guest; Env is the complete environment
// of the child. Stdin may be nil when nothing is to be forwarded;
// Stdout and Stderr may be nil to discard that channel.
type ExecSpec struct {
	Command string
	Env     map[string]string
	Stdin   platform.File
	Stdout  io.Writer
	Stderr  io.Writer
}

// ExecListener receives the two lifecycle events of an Exec call.
//
// OnStarted fires exactly once: with nil once the stream is open, or
// with the reason it could not be opened, in which case OnTerminated
// follows immediately and no I/O happens. OnTerminated fires exactly
// once after OnStarted, from the call's receiving goroutine, with the
// translated terminal status and the command's exit code.
type ExecListener interface {
	OnStarted(err error)
	OnTerminated(err error, exitCode int)
}

// Exec launches a remote command and returns as soon as its two pump
// goroutines are running; progress is delivered through the listener.
// Most callers want Run instead.
func (c *Client) Exec(ctx context.Context, spec ExecSpec, listener ExecListener) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := c.courier.Exec(ctx)
	if err != nil {
		cancel()
		listener.OnStarted(err)
		listener.OnTerminated(common.Translate(wire.StatusGRPCFailure), 0)
		return
	}
	listener.OnStarted(nil)

	go c.execSend(stream, spec)
	go c.execReceive(cancel, stream, spec, listener)
}

// Run is the blocking form of Exec: it starts the command and waits for
// termination, returning the remote exit code and the translated
// terminal status.
func (c *Client) Run(ctx context.Context, spec ExecSpec) (int, error) {
	l := &waitListener{done: make(chan struct{})}
	c.Exec(ctx, spec, l)
	<-l.done
	return l.code, l.err
}

type waitListener struct {
	done chan struct{}
	code int
	err  error
}

func (l *waitListener) OnStarted(err error) {}

func (l *waitListener) OnTerminated(err error, code int) {
	l.err = err
	l.code = code
	close(l.done)
}

// execSend is the stream's only sender. It delivers the command, then
// forwards stdin fragment by fragment until EOF, half-closing so the
// child sees its stdin end. A send failure just stops the pump; the
// receiving side surfaces the reason.
func (c *Client) execSend(stream wire.Courier_ExecClient, spec ExecSpec) {
	if err := stream.Send(&wire.ExecRequest{Command: spec.Command, Env: spec.Env}); err != nil {
		return
	}
	if spec.Stdin == nil {
		_ = stream.CloseSend()
		return
	}

	buf := make([]byte, c.fragmentSize)
	for {
		n, err := spec.Stdin.Read(buf)
		if errors.Is(err, common.ErrWouldBlock) {
			if err := stream.Send(&wire.ExecRequest{}); err != nil {
				return
			}
			_ = c.platform.PollRead([]platform.File{spec.Stdin}, pollInterval)
			continue
		}
		if err != nil {
			_ = stream.CloseSend()
			return
		}
		if err := stream.Send(&wire.ExecRequest{Stdin: buf[:n]}); err != nil {
			return
		}
	}
}

// execReceive is the stream's only receiver. It fans output fragments
// out to the sinks and terminates the call on the exited marker. The
// deferred cancel tears the stream down, which also unblocks the send
// pump.
func (c *Client) execReceive(cancel context.CancelFunc, stream wire.Courier_ExecClient, spec ExecSpec, listener ExecListener) {
	defer cancel()

	for {
		resp, err := stream.Recv()
		if err != nil {
			// The agent always finishes with an exited marker; a bare
			// stream end means the peer went away mid-command.
			listener.OnTerminated(common.Translate(wire.StatusGRPCFailure), 0)
			return
		}
		writeSink(spec.Stdout, resp.Stdout)
		writeSink(spec.Stderr, resp.Stderr)
		if resp.Exited {
			listener.OnTerminated(common.Translate(resp.Status), int(resp.ExitCode))
			return
		}
	}
}

func writeSink(w io.Writer, b []byte) {
	if w == nil || len(b) == 0 {
		return
	}
	_, _ = w.Write(b)
}
