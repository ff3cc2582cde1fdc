package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/virtbridge/vmcourier/internal/common"
	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// Exec runs one command. The first request carries the command line and
// environment; the handler goroutine pumps output and owns the child
// (including reaping it), while a second goroutine pumps client stdin
// in. Intermediate responses carry output only; the final response sets
// the exited marker with the exit code.
func (s *Server) Exec(stream wire.Courier_ExecServer) error {
	ctx := stream.Context()
	log := s.callLogger(ctx)

	first, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		// Half-closed without a command.
		return stream.Send(&wire.ExecResponse{Status: wire.StatusServerExecParse, Exited: true})
	}
	if err != nil {
		return err
	}

	argv, perr := s.platform.ParseCommand(first.Command)
	if perr != nil || len(argv) == 0 {
		log.Warn(ctx, "unparsable command", "command", first.Command, "error", perr)
		return stream.Send(&wire.ExecResponse{Status: wire.StatusServerExecParse, Exited: true})
	}

	proc, err := s.platform.StartProcess(argv, envList(first.Env))
	if err != nil {
		log.Error(ctx, "start failed", "argv0", argv[0], "error", err)
		return stream.Send(&wire.ExecResponse{Status: wire.StatusServerExecFork, Exited: true})
	}

	log = log.With("pid", proc.Pid())
	log.Info(ctx, "command started", "argv0", argv[0])
	defer proc.Stdout().Close()
	defer proc.Stderr().Close()

	if err := s.prepPipes(proc); err != nil {
		log.Error(ctx, "pipe setup failed", "error", err)
		_ = proc.Kill()
		_, _ = proc.Wait()
		_ = proc.Stdin().Close()
		return stream.Send(&wire.ExecResponse{Status: wire.StatusServerExecFork, Exited: true})
	}

	if len(first.Stdin) > 0 {
		if _, err := proc.Stdin().Write(first.Stdin); err != nil {
			log.Warn(ctx, "stdin write failed", "error", err)
			_ = proc.Stdin().Close()
		}
	}

	go s.pumpStdin(ctx, log, stream, proc)

	return s.pumpOutput(ctx, log, stream, proc)
}

func (s *Server) prepPipes(proc platform.Process) error {
	if err := s.platform.SetNonblocking(proc.Stdout()); err != nil {
		return err
	}
	return s.platform.SetNonblocking(proc.Stderr())
}

// envList flattens the request environment into KEY=VALUE form. The
// child sees exactly these variables, in a fixed order.
func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// pumpStdin forwards client stdin fragments into the child. It is the
// stream's only receiver after the first request. Client half-close,
// a dead child, or a write failure all end the pump, closing the
// child's stdin so it sees EOF.
func (s *Server) pumpStdin(ctx context.Context, log logging.Logger, stream wire.Courier_ExecServer, proc platform.Process) {
	stdin := proc.Stdin()
	defer stdin.Close()

	for {
		req, err := stream.Recv()
		if err != nil {
			return
		}
		if len(req.Stdin) == 0 {
			continue
		}
		if !proc.Alive() {
			return
		}
		if _, err := stdin.Write(req.Stdin); err != nil {
			log.Warn(ctx, "stdin write failed", "error", err)
			return
		}
	}
}

// pumpOutput is the stream's only sender: it polls the child for exit,
// relays stdout/stderr fragments, and emits empty keepalives when the
// pipes have nothing ready. It reaps the child on every exit path.
func (s *Server) pumpOutput(ctx context.Context, log logging.Logger, stream wire.Courier_ExecServer, proc platform.Process) error {
	stdout := &pipeReader{f: proc.Stdout(), buf: make([]byte, s.fragmentSize)}
	stderr := &pipeReader{f: proc.Stderr(), buf: make([]byte, s.fragmentSize)}

	abandon := func(err error) error {
		_ = proc.Kill()
		_, _ = proc.Wait()
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return abandon(err)
		}

		exited, code, err := proc.TryWait()
		if err != nil {
			log.Error(ctx, "wait failed", "error", err)
			_ = proc.Kill()
			return fmt.Errorf("wait pid %d: %w", proc.Pid(), err)
		}

		if exited {
			// Flush what the child left in the pipes, then report.
			for {
				out, _ := stdout.next(ctx, log, "stdout")
				errOut, _ := stderr.next(ctx, log, "stderr")
				if len(out) == 0 && len(errOut) == 0 {
					break
				}
				if err := stream.Send(&wire.ExecResponse{Status: wire.StatusOK, Stdout: out, Stderr: errOut}); err != nil {
					return err
				}
			}
			log.Info(ctx, "command exited", "code", code)
			return stream.Send(&wire.ExecResponse{Status: wire.StatusOK, ExitCode: int32(code), Exited: true})
		}

		out, outBlocked := stdout.next(ctx, log, "stdout")
		errOut, errBlocked := stderr.next(ctx, log, "stderr")

		if err := stream.Send(&wire.ExecResponse{Status: wire.StatusOK, Stdout: out, Stderr: errOut}); err != nil {
			return abandon(err)
		}

		if len(out) == 0 && len(errOut) == 0 {
			s.pacePipes(stdout, stderr, outBlocked, errBlocked)
		}
	}
}

func (s *Server) pacePipes(stdout, stderr *pipeReader, outBlocked, errBlocked bool) {
	var files []platform.File
	if outBlocked {
		files = append(files, stdout.f)
	}
	if errBlocked {
		files = append(files, stderr.f)
	}
	_ = s.platform.PollRead(files, pollInterval)
}

type pipeReader struct {
	f   platform.File
	buf []byte
	eof bool
}

// next returns whatever the pipe has, up to one fragment. blocked
// reports EAGAIN. After EOF or a read failure next returns empty
// forever.
func (p *pipeReader) next(ctx context.Context, log logging.Logger, name string) (data []byte, blocked bool) {
	if p.eof {
		return nil, false
	}
	n, err := p.f.Read(p.buf)
	switch {
	case errors.Is(err, common.ErrWouldBlock):
		return nil, true
	case errors.Is(err, io.EOF):
		p.eof = true
		return nil, false
	case err != nil:
		log.Warn(ctx, name+" read failed", "error", err)
		p.eof = true
		return nil, false
	}
	return p.buf[:n], false
}
