package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sys/unix"

	"github.com/virtbridge/vmcourier/internal/common"
)

// OS is the production Platform backed by unix syscalls. File I/O runs
// on raw descriptors so EAGAIN stays observable to the transfer loops
// instead of being absorbed by the runtime poller.
type OS struct {
	reaper *Reaper
}

// NewOS returns the unix Platform. reaper may be nil; it is only
// meaningful in the agent when running as PID 1.
func NewOS(reaper *Reaper) *OS {
	return &OS{reaper: reaper}
}

func (o *OS) OpenRead(path string) (File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &osFile{fd: fd, name: path}, nil
}

func (o *OS) Create(path string) (File, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &osFile{fd: fd, name: path}, nil
}

func (o *OS) FileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func (o *OS) DirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func (o *OS) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func (o *OS) SetNonblocking(f File) error {
	of, ok := f.(*osFile)
	if !ok {
		return fmt.Errorf("set nonblocking: not an os file: %T", f)
	}
	if err := unix.SetNonblock(of.fd, true); err != nil {
		return fmt.Errorf("set nonblocking %s: %w", of.name, err)
	}
	return nil
}

func (o *OS) PollRead(files []File, timeout time.Duration) error {
	pfds := make([]unix.PollFd, 0, len(files))
	for _, f := range files {
		of, ok := f.(*osFile)
		if !ok {
			return fmt.Errorf("poll: not an os file: %T", f)
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(of.fd), Events: unix.POLLIN})
	}
	if _, err := unix.Poll(pfds, int(timeout.Milliseconds())); err != nil && err != unix.EINTR {
		return fmt.Errorf("poll: %w", err)
	}
	return nil
}

func (o *OS) ParseCommand(line string) ([]string, error) {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	return argv, nil
}

// StartProcess resolves argv[0] on PATH and launches it with exactly
// the given environment. All three standard streams are pipes; the
// parent keeps the raw descriptors so they can be driven non-blocking.
func (o *OS) StartProcess(argv []string, env []string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("start process: empty argv")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	stdin, err := newPipe("stdin")
	if err != nil {
		return nil, err
	}
	stdout, err := newPipe("stdout")
	if err != nil {
		stdin.closeBoth()
		return nil, err
	}
	stderr, err := newPipe("stderr")
	if err != nil {
		stdin.closeBoth()
		stdout.closeBoth()
		return nil, err
	}

	// The child ends are wrapped just long enough for StartProcess to
	// dup them onto descriptors 0..2.
	childStdin := os.NewFile(uintptr(stdin.r), "child-stdin")
	childStdout := os.NewFile(uintptr(stdout.w), "child-stdout")
	childStderr := os.NewFile(uintptr(stderr.w), "child-stderr")

	proc, err := os.StartProcess(path, argv, &os.ProcAttr{
		Env:   env,
		Files: []*os.File{childStdin, childStdout, childStderr},
	})

	childStdin.Close()
	childStdout.Close()
	childStderr.Close()

	if err != nil {
		unix.Close(stdin.w)
		unix.Close(stdout.r)
		unix.Close(stderr.r)
		return nil, fmt.Errorf("start process %s: %w", path, err)
	}

	pid := proc.Pid
	// The exec engine reaps via wait4; release the handle so nothing
	// else holds wait rights on the child.
	_ = proc.Release()

	return &osProcess{
		pid:    pid,
		stdin:  &osFile{fd: stdin.w, name: fmt.Sprintf("pid %d stdin", pid)},
		stdout: &osFile{fd: stdout.r, name: fmt.Sprintf("pid %d stdout", pid)},
		stderr: &osFile{fd: stderr.r, name: fmt.Sprintf("pid %d stderr", pid)},
		reaper: o.reaper,
	}, nil
}

type pipe struct{ r, w int }

func newPipe(name string) (pipe, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return pipe{}, fmt.Errorf("pipe %s: %w", name, err)
	}
	return pipe{r: p[0], w: p[1]}, nil
}

func (p pipe) closeBoth() {
	unix.Close(p.r)
	unix.Close(p.w)
}

type osFile struct {
	fd   int
	name string

	mu     sync.Mutex
	closed bool
}

func (f *osFile) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(f.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, common.ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read %s: %w", f.name, err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (f *osFile) Write(p []byte) (int, error) {
	var total int
	for total < len(p) {
		n, err := unix.Write(f.fd, p[total:])
		if n > 0 {
			total += n
		}
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return total, common.ErrWouldBlock
		case err != nil:
			return total, fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return total, nil
}

func (f *osFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if err := unix.Close(f.fd); err != nil {
		return fmt.Errorf("close %s: %w", f.name, err)
	}
	return nil
}

type osProcess struct {
	pid    int
	stdin  *osFile
	stdout *osFile
	stderr *osFile
	reaper *Reaper
}

func (p *osProcess) Pid() int     { return p.pid }
func (p *osProcess) Stdin() File  { return p.stdin }
func (p *osProcess) Stdout() File { return p.stdout }
func (p *osProcess) Stderr() File { return p.stderr }

func (p *osProcess) Alive() bool {
	return unix.Kill(p.pid, 0) == nil
}

func (p *osProcess) Kill() error {
	if err := unix.Kill(p.pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("kill pid %d: %w", p.pid, err)
	}
	return nil
}

func (p *osProcess) TryWait() (bool, int, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG, nil)
	for err == unix.EINTR {
		wpid, err = unix.Wait4(p.pid, &ws, unix.WNOHANG, nil)
	}
	if err == unix.ECHILD {
		// A PID-1 reaper may have collected the child first; its
		// record keeps the exit status observable.
		if code, ok := p.reaper.Reaped(p.pid); ok {
			return true, code, nil
		}
		return false, 0, fmt.Errorf("wait pid %d: %w", p.pid, err)
	}
	if err != nil {
		return false, 0, fmt.Errorf("wait pid %d: %w", p.pid, err)
	}
	if wpid == 0 {
		return false, 0, nil
	}
	return true, exitCode(ws), nil
}

func (p *osProcess) Wait() (int, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.pid, &ws, 0, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			// The PID-1 reaper can win the race; its record may land
			// a beat after our wait fails.
			for i := 0; i < 50; i++ {
				if code, ok := p.reaper.Reaped(p.pid); ok {
					return code, nil
				}
				time.Sleep(10 * time.Millisecond)
			}
			return 0, fmt.Errorf("wait pid %d: %w", p.pid, err)
		case err != nil:
			return 0, fmt.Errorf("wait pid %d: %w", p.pid, err)
		case wpid == p.pid:
			return exitCode(ws), nil
		}
	}
}

// exitCode keeps the shell convention for signal deaths (128+signo).
func exitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
