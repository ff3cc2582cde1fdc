package client

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentgrpc "github.com/virtbridge/vmcourier/internal/agent/grpc"
	"github.com/virtbridge/vmcourier/internal/common"
	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/netx"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// startAgent runs a real agent server on a unix socket and tears it
// down with the test. These tests drive the full path: endpoint
// parsing, dialing, the CBOR codec, the server handlers and the client
// state machines, with only the platform faked on both ends.
func startAgent(t *testing.T, plat platform.Platform) netx.Endpoint {
	t.Helper()

	ep := netx.Endpoint{Scheme: "unix", Path: filepath.Join(t.TempDir(), "agent.sock")}
	srv, err := agentgrpc.NewServer(ep, 0, plat, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("agent did not stop")
		}
	})
	return ep
}

func dialAgent(t *testing.T, ep netx.Endpoint, plat platform.Platform) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := netx.Dial(ctx, ep, 20, 10*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return New(conn, plat, logging.NewNop(), 0)
}

func opCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEndToEndGet(t *testing.T) {
	guest := platform.NewFake()
	content := bytes.Repeat([]byte("x"), 2500) // several fragments
	guest.AddFile("/var/log/boot.log", content)

	host := platform.NewFake()

	c := dialAgent(t, startAgent(t, guest), host)

	res, err := c.Get(opCtx(t), "/var/log/boot.log", "/host/boot.log")
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, res.Status)
	assert.Equal(t, int64(len(content)), res.Bytes)

	got, ok := host.FileContent("/host/boot.log")
	require.True(t, ok)
	assert.Equal(t, content, got)
}

func TestEndToEndGetMissingRemoteFile(t *testing.T) {
	guest := platform.NewFake()
	host := platform.NewFake()

	c := dialAgent(t, startAgent(t, guest), host)

	res, err := c.Get(opCtx(t), "/no/such/file", "/host/out")
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Contains(t, err.Error(), "SERVER_MISSING_FILE_FAILURE")
	assert.Equal(t, wire.StatusServerMissingFile, res.Status)

	// The destination was created before the call and stays empty.
	got, ok := host.FileContent("/host/out")
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestEndToEndPut(t *testing.T) {
	guest := platform.NewFake()
	host := platform.NewFake()
	content := bytes.Repeat([]byte("y"), 1536)
	host.AddFile("/host/payload.bin", content)

	c := dialAgent(t, startAgent(t, guest), host)

	res, err := c.Put(opCtx(t), "/host/payload.bin", "/guest/payload.bin")
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, res.Status)
	assert.Equal(t, int64(len(content)), res.Bytes)

	got, ok := guest.FileContent("/guest/payload.bin")
	require.True(t, ok)
	assert.Equal(t, content, got)
}

func TestEndToEndPutIntoDirectoryFails(t *testing.T) {
	guest := platform.NewFake()
	guest.AddDir("/guest/dir")
	host := platform.NewFake()
	host.AddFile("/host/a", []byte("data"))

	c := dialAgent(t, startAgent(t, guest), host)

	res, err := c.Put(opCtx(t), "/host/a", "/guest/dir")
	require.ErrorIs(t, err, common.ErrPermission)
	assert.Equal(t, wire.StatusServerCreateFile, res.Status)
}

func TestEndToEndExec(t *testing.T) {
	guest := platform.NewFake()
	proc := platform.NewFakeProcess(321, []byte("hello from guest\n"), nil, 3)
	guest.ScriptProcess(proc)

	c := dialAgent(t, startAgent(t, guest), platform.NewFake())

	var stdout, stderr bytes.Buffer
	code, err := c.Run(opCtx(t), ExecSpec{
		Command: "echo hello from guest",
		Env:     map[string]string{"LANG": "C"},
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "hello from guest\n", stdout.String())
	assert.Empty(t, stderr.String())
	assert.Equal(t, []string{"echo", "hello", "from", "guest"}, proc.Argv)
	assert.Equal(t, []string{"LANG=C"}, proc.Env)
}

func TestEndToEndExecForwardsStdin(t *testing.T) {
	guest := platform.NewFake()
	proc := platform.NewFakeProcess(322, nil, nil, 0)
	proc.ExitOnStdinClose = true
	guest.ScriptProcess(proc)

	host := platform.NewFake()
	stdin := host.AddFile("/host/input", []byte("piped input"))

	c := dialAgent(t, startAgent(t, guest), host)

	code, err := c.Run(opCtx(t), ExecSpec{Command: "cat", Stdin: stdin})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "piped input", string(proc.Stdin().(*platform.FakeFile).Written()))
}

func TestEndToEndExecParseFailure(t *testing.T) {
	guest := platform.NewFake()

	c := dialAgent(t, startAgent(t, guest), platform.NewFake())

	code, err := c.Run(opCtx(t), ExecSpec{Command: `sh -c 'unbalanced`})
	require.ErrorIs(t, err, common.ErrInvalidArgument)
	assert.Equal(t, 0, code)
}

func TestEndToEndConcurrentTransfers(t *testing.T) {
	guest := platform.NewFake()
	a := bytes.Repeat([]byte("a"), 1100)
	b := bytes.Repeat([]byte("b"), 2200)
	guest.AddFile("/guest/a", a)
	guest.AddFile("/guest/b", b)

	host := platform.NewFake()

	c := dialAgent(t, startAgent(t, guest), host)

	var wg sync.WaitGroup
	ctx := opCtx(t)
	for _, tc := range []struct {
		remote, local string
		want          []byte
	}{
		{"/guest/a", "/host/a", a},
		{"/guest/b", "/host/b", b},
	} {
		tc := tc
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Get(ctx, tc.remote, tc.local)
			assert.NoError(t, err)
			assert.Equal(t, int64(len(tc.want)), res.Bytes)
		}()
	}
	wg.Wait()

	for path, want := range map[string][]byte{"/host/a": a, "/host/b": b} {
		got, ok := host.FileContent(path)
		require.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
}
