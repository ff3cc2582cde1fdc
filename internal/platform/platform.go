// Package platform isolates the transfer and exec engines from the
// operating system. Everything the protocol handlers do to the outside
// world goes through the Platform interface, so the call state machines
// can be driven against an in-memory Fake in tests and against unix
// syscalls in production.
package platform

import "time"

// File is one open descriptor. On a descriptor placed in non-blocking
// mode, Read and Write return common.ErrWouldBlock when no progress is
// possible right now; the transfer loops turn that into an empty
// keepalive fragment instead of blocking.
type File interface {
	// Read fills p and reports io.EOF at end of stream.
	Read(p []byte) (int, error)

	// Write writes p, possibly partially on non-blocking descriptors.
	Write(p []byte) (int, error)

	// Close releases the descriptor. Close is idempotent: exec
	// teardown and a pump may both close the same end.
	Close() error
}

// Process is a spawned child command. The caller that started the
// process owns reaping it: exactly one of TryWait-until-exited or Wait
// collects the exit status.
type Process interface {
	Pid() int

	// Stdin is the write end of the child's stdin pipe.
	Stdin() File
	// Stdout and Stderr are the read ends of the output pipes.
	Stdout() File
	Stderr() File

	// Alive probes whether the process still exists (signal 0).
	Alive() bool

	// Kill delivers SIGKILL. The caller still has to reap.
	Kill() error

	// TryWait polls for exit without blocking. exited is false while
	// the process is still running.
	TryWait() (exited bool, code int, err error)

	// Wait blocks until the process exits and returns its code.
	Wait() (int, error)
}

// Platform is the capability surface the engines run against.
type Platform interface {
	// OpenRead opens path for reading.
	OpenRead(path string) (File, error)

	// Create creates or truncates path for writing.
	Create(path string) (File, error)

	// FileExists reports whether path exists and is a regular file.
	FileExists(path string) bool

	// DirExists reports whether path exists and is a directory.
	DirExists(path string) bool

	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error

	// SetNonblocking switches f into non-blocking mode.
	SetNonblocking(f File) error

	// PollRead sleeps until at least one of files is readable or the
	// timeout passes. Used to pace non-blocking read loops; a timeout
	// is not an error.
	PollRead(files []File, timeout time.Duration) error

	// ParseCommand splits a command line into argv using shell lexing
	// rules (quoting and escaping, no expansion).
	ParseCommand(line string) ([]string, error)

	// StartProcess launches argv[0] (resolved via PATH) with exactly
	// the given environment and pipes on stdin/stdout/stderr. The
	// child inherits nothing from the agent's environment.
	StartProcess(argv []string, env []string) (Process, error)
}
