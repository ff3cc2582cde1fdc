package platform

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/virtbridge/vmcourier/internal/common"
)

// Fake is an in-memory Platform for driving the call state machines in
// tests: per-path error injection, scripted would-block reads, and
// scripted child processes. Zero-value maps are initialized by NewFake;
// tests mutate the exported fields directly.
type Fake struct {
	mu sync.Mutex

	files map[string]*FakeFile
	dirs  map[string]bool

	OpenErr   map[string]error
	CreateErr map[string]error
	// WriteErr arms the file created at a path so its writes fail.
	WriteErr map[string]error
	MkdirErr error
	StartErr error

	procs   []*FakeProcess
	started []*FakeProcess

	PollCalls int
}

func NewFake() *Fake {
	return &Fake{
		files:     make(map[string]*FakeFile),
		dirs:      map[string]bool{"/": true},
		OpenErr:   make(map[string]error),
		CreateErr: make(map[string]error),
		WriteErr:  make(map[string]error),
	}
}

// AddFile registers a file with the given content and returns it so
// the test can attach a read script or error.
func (f *Fake) AddFile(path string, data []byte) *FakeFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff := &FakeFile{name: path, data: data}
	f.files[path] = ff
	return ff
}

func (f *Fake) AddDir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[path] = true
}

// FileContent returns the bytes written to a created file, or the
// registered data if nothing was written.
func (f *Fake) FileContent(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[path]
	if !ok {
		return nil, false
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.written != nil {
		return ff.written, true
	}
	return ff.data, true
}

// ScriptProcess queues a process for the next StartProcess call.
func (f *Fake) ScriptProcess(p *FakeProcess) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs = append(f.procs, p)
}

// Started returns the processes launched so far, in order.
func (f *Fake) Started() []*FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeProcess(nil), f.started...)
}

func (f *Fake) OpenRead(path string) (File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.OpenErr[path]; err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	ff, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	return ff, nil
}

func (f *Fake) Create(path string) (File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.CreateErr[path]; err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if f.dirs[path] {
		return nil, fmt.Errorf("create %s: is a directory", path)
	}
	ff := &FakeFile{name: path, written: []byte{}, WriteErr: f.WriteErr[path]}
	f.files[path] = ff
	return ff, nil
}

func (f *Fake) FileExists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func (f *Fake) DirExists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[path]
}

func (f *Fake) MkdirAll(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MkdirErr != nil {
		return f.MkdirErr
	}
	for p := path; p != "/" && p != "."; p = filepath.Dir(p) {
		f.dirs[p] = true
	}
	return nil
}

func (f *Fake) SetNonblocking(file File) error {
	ff, ok := file.(*FakeFile)
	if !ok {
		return fmt.Errorf("set nonblocking: not a fake file: %T", file)
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.nonblock = true
	return nil
}

func (f *Fake) PollRead(files []File, timeout time.Duration) error {
	f.mu.Lock()
	f.PollCalls++
	f.mu.Unlock()
	// Yield briefly so loops paced by PollRead cannot starve other
	// goroutines in tests.
	time.Sleep(time.Millisecond)
	return nil
}

func (f *Fake) ParseCommand(line string) ([]string, error) {
	return shellwords.Parse(line)
}

func (f *Fake) StartProcess(argv []string, env []string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if len(f.procs) == 0 {
		return nil, fmt.Errorf("start %v: no scripted process", argv)
	}
	p := f.procs[0]
	f.procs = f.procs[1:]
	p.Argv = append([]string(nil), argv...)
	p.Env = append([]string(nil), env...)
	f.started = append(f.started, p)
	return p, nil
}

// ReadStep is one scripted Read outcome on a FakeFile.
type ReadStep struct {
	Data       []byte
	WouldBlock bool
	Err        error
}

// FakeFile is a scriptable in-memory file. Reads serve the registered
// data in caller-sized chunks unless a Script is set, in which case
// each Read consumes one step; an exhausted script reads io.EOF.
// Writes are captured in Written.
type FakeFile struct {
	mu   sync.Mutex
	name string

	data []byte
	pos  int

	Script   []ReadStep
	ReadErr  error
	WriteErr error

	written  []byte
	nonblock bool
	closed   int
}

func (ff *FakeFile) Read(p []byte) (int, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.ReadErr != nil {
		return 0, ff.ReadErr
	}
	if ff.Script != nil {
		if len(ff.Script) == 0 {
			return 0, io.EOF
		}
		step := ff.Script[0]
		ff.Script = ff.Script[1:]
		switch {
		case step.WouldBlock:
			return 0, common.ErrWouldBlock
		case step.Err != nil:
			return 0, step.Err
		}
		n := copy(p, step.Data)
		if n < len(step.Data) {
			// Keep the remainder at the front of the script.
			ff.Script = append([]ReadStep{{Data: step.Data[n:]}}, ff.Script...)
		}
		return n, nil
	}
	if ff.pos >= len(ff.data) {
		return 0, io.EOF
	}
	n := copy(p, ff.data[ff.pos:])
	ff.pos += n
	return n, nil
}

func (ff *FakeFile) Write(p []byte) (int, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.WriteErr != nil {
		return 0, ff.WriteErr
	}
	if ff.written == nil {
		ff.written = []byte{}
	}
	ff.written = append(ff.written, p...)
	return len(p), nil
}

func (ff *FakeFile) Close() error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.closed++
	return nil
}

// Written returns the bytes written so far.
func (ff *FakeFile) Written() []byte {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return append([]byte(nil), ff.written...)
}

// Closed reports whether Close was called at least once.
func (ff *FakeFile) Closed() bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.closed > 0
}

// Nonblocking reports whether SetNonblocking was applied.
func (ff *FakeFile) Nonblocking() bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.nonblock
}

// FakeProcess is a scripted child process. Stdout and Stderr serve
// their FakeFile contents or scripts; writes to Stdin are captured.
// The process reports running until RunningWaits TryWait polls have
// happened; zero means it has already exited on the first poll. With
// ExitOnStdinClose set it instead runs until its stdin is closed, the
// way cat does.
type FakeProcess struct {
	mu sync.Mutex

	pid int

	Code             int
	RunningWaits     int
	ExitOnStdinClose bool
	KillErr          error

	Argv []string
	Env  []string

	stdin  *FakeFile
	stdout *FakeFile
	stderr *FakeFile

	killed bool
	waits  int
	reaped bool
}

func NewFakeProcess(pid int, stdout, stderr []byte, code int) *FakeProcess {
	return &FakeProcess{
		pid:    pid,
		Code:   code,
		stdin:  &FakeFile{name: "stdin"},
		stdout: &FakeFile{name: "stdout", data: stdout},
		stderr: &FakeFile{name: "stderr", data: stderr},
	}
}

func (p *FakeProcess) Pid() int     { return p.pid }
func (p *FakeProcess) Stdin() File  { return p.stdin }
func (p *FakeProcess) Stdout() File { return p.stdout }
func (p *FakeProcess) Stderr() File { return p.stderr }

func (p *FakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return false
	}
	if p.ExitOnStdinClose {
		return !p.stdin.Closed()
	}
	return p.waits < p.RunningWaits
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.KillErr != nil {
		return p.KillErr
	}
	p.killed = true
	return nil
}

func (p *FakeProcess) TryWait() (bool, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		p.reaped = true
		return true, 137, nil
	}
	if p.ExitOnStdinClose {
		if p.stdin.Closed() {
			p.reaped = true
			return true, p.Code, nil
		}
		return false, 0, nil
	}
	if p.waits >= p.RunningWaits {
		p.reaped = true
		return true, p.Code, nil
	}
	p.waits++
	return false, 0, nil
}

func (p *FakeProcess) Wait() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reaped = true
	if p.killed {
		return 137, nil
	}
	return p.Code, nil
}

// Reaped reports whether the engine collected the exit status.
func (p *FakeProcess) Reaped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reaped
}
