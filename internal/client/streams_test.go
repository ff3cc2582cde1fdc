package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/platform"
	"github.com/virtbridge/vmcourier/internal/wire"
)

var errBrokenStream = errors.New("transport broken")

// fakeCourier hands pre-built fake streams to the call state machines
// and records that the calls were issued at all.
type fakeCourier struct {
	mu sync.Mutex

	get    *fakeGetStream
	getErr error
	getReq *wire.GetRequest

	put       *fakePutStream
	putErr    error
	putCalled bool

	exec    *fakeExecStream
	execErr error
}

func (f *fakeCourier) Get(ctx context.Context, in *wire.GetRequest, opts ...grpc.CallOption) (wire.Courier_GetClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.getReq = in
	f.get.ctx = ctx
	return f.get, nil
}

func (f *fakeCourier) Put(ctx context.Context, opts ...grpc.CallOption) (wire.Courier_PutClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalled = true
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.put.ctx = ctx
	return f.put, nil
}

func (f *fakeCourier) Exec(ctx context.Context, opts ...grpc.CallOption) (wire.Courier_ExecClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.exec.ctx = ctx
	return f.exec, nil
}

func (f *fakeCourier) getRequest() *wire.GetRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getReq
}

func (f *fakeCourier) putWasCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalled
}

func newTestClient(fc *fakeCourier, plat platform.Platform, fragmentSize int) *Client {
	return &Client{
		courier:      fc,
		platform:     plat,
		logger:       logging.NewNop(),
		fragmentSize: fragmentSize,
	}
}

// fakeClientStream carries the grpc.ClientStream plumbing shared by the
// per-call fakes. The guards fail the test if a second concurrent Send
// or Recv is ever issued on one stream.
type fakeClientStream struct {
	t         *testing.T
	ctx       context.Context
	inSend    atomic.Bool
	inRecv    atomic.Bool
	closeSent atomic.Bool
}

func (f *fakeClientStream) Header() (metadata.MD, error) { return nil, nil }
func (f *fakeClientStream) Trailer() metadata.MD         { return nil }
func (f *fakeClientStream) Context() context.Context     { return f.ctx }
func (f *fakeClientStream) SendMsg(any) error            { return nil }
func (f *fakeClientStream) RecvMsg(any) error            { return nil }

func (f *fakeClientStream) CloseSend() error {
	f.closeSent.Store(true)
	return nil
}

func (f *fakeClientStream) enterSend() func() {
	if !f.inSend.CompareAndSwap(false, true) {
		f.t.Error("second concurrent Send on one stream")
	}
	return func() { f.inSend.Store(false) }
}

func (f *fakeClientStream) enterRecv() func() {
	if !f.inRecv.CompareAndSwap(false, true) {
		f.t.Error("second concurrent Recv on one stream")
	}
	return func() { f.inRecv.Store(false) }
}

// fakeGetStream serves scripted download fragments. finalErr replaces
// the io.EOF after the script runs out, to model a broken transport.
type fakeGetStream struct {
	*fakeClientStream
	mu       sync.Mutex
	resps    []*wire.GetResponse
	next     int
	finalErr error
}

func newFakeGetStream(t *testing.T, resps ...*wire.GetResponse) *fakeGetStream {
	return &fakeGetStream{fakeClientStream: &fakeClientStream{t: t}, resps: resps}
}

func (f *fakeGetStream) Recv() (*wire.GetResponse, error) {
	defer f.enterRecv()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.resps) {
		if f.finalErr != nil {
			return nil, f.finalErr
		}
		return nil, io.EOF
	}
	r := f.resps[f.next]
	f.next++
	return r, nil
}

func (f *fakeGetStream) consumed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// fakePutStream records uploaded fragments and answers CloseAndRecv
// with a scripted terminal response. failAt breaks the transport on the
// n-th Send (0-based); -1 disables. A broken transport also fails the
// CloseAndRecv.
type fakePutStream struct {
	*fakeClientStream
	mu     sync.Mutex
	sent   []*wire.PutRequest
	failAt int
	dead   bool
	resp   *wire.PutResponse
	err    error
}

func newFakePutStream(t *testing.T, resp *wire.PutResponse) *fakePutStream {
	return &fakePutStream{fakeClientStream: &fakeClientStream{t: t}, failAt: -1, resp: resp}
}

func (f *fakePutStream) Send(r *wire.PutRequest) error {
	defer f.enterSend()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt >= 0 && len(f.sent) == f.failAt {
		f.dead = true
		return errBrokenStream
	}
	cp := *r
	cp.Data = append([]byte(nil), r.Data...)
	f.sent = append(f.sent, &cp)
	return nil
}

func (f *fakePutStream) CloseAndRecv() (*wire.PutResponse, error) {
	defer f.enterRecv()()
	f.closeSent.Store(true)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return nil, errBrokenStream
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakePutStream) requests() []*wire.PutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wire.PutRequest(nil), f.sent...)
}

// fakeExecStream records sent requests and feeds responses through a
// channel, so a test can hold replies back until it has seen the
// requests it expects. Recv fails once the call context is canceled,
// the way a real stream dies with its call.
type fakeExecStream struct {
	*fakeClientStream
	mu     sync.Mutex
	sent   []*wire.ExecRequest
	failAt int
	out    chan *wire.ExecResponse
}

func newFakeExecStream(t *testing.T) *fakeExecStream {
	return &fakeExecStream{
		fakeClientStream: &fakeClientStream{t: t},
		failAt:           -1,
		out:              make(chan *wire.ExecResponse, 16),
	}
}

func (f *fakeExecStream) Send(r *wire.ExecRequest) error {
	defer f.enterSend()()
	if f.ctx != nil && f.ctx.Err() != nil {
		return f.ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt >= 0 && len(f.sent) == f.failAt {
		return errBrokenStream
	}
	cp := *r
	cp.Stdin = append([]byte(nil), r.Stdin...)
	f.sent = append(f.sent, &cp)
	return nil
}

func (f *fakeExecStream) Recv() (*wire.ExecResponse, error) {
	defer f.enterRecv()()
	select {
	case r, ok := <-f.out:
		if !ok {
			return nil, io.EOF
		}
		return r, nil
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
}

// push queues one response for the receive pump.
func (f *fakeExecStream) push(r *wire.ExecResponse) {
	f.out <- r
}

// finish queues the terminal response and ends the stream.
func (f *fakeExecStream) finish(r *wire.ExecResponse) {
	f.out <- r
	close(f.out)
}

func (f *fakeExecStream) requests() []*wire.ExecRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wire.ExecRequest(nil), f.sent...)
}
