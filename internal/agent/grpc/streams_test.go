package grpc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc/metadata"

	"github.com/virtbridge/vmcourier/internal/wire"
)

// fakeServerStream carries the grpc.ServerStream plumbing shared by the
// per-call fakes. The guards fail the test if a second concurrent Send
// or Recv is ever issued on one stream, which is the substrate's
// per-stream contract.
type fakeServerStream struct {
	t      *testing.T
	ctx    context.Context
	cancel context.CancelFunc
	inSend atomic.Bool
	inRecv atomic.Bool
}

func newFakeServerStream(t *testing.T) *fakeServerStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeServerStream{t: t, ctx: ctx, cancel: cancel}
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(any) error            { return nil }
func (f *fakeServerStream) RecvMsg(any) error            { return nil }

func (f *fakeServerStream) enterSend() func() {
	if !f.inSend.CompareAndSwap(false, true) {
		f.t.Error("second concurrent Send on one stream")
	}
	return func() { f.inSend.Store(false) }
}

func (f *fakeServerStream) enterRecv() func() {
	if !f.inRecv.CompareAndSwap(false, true) {
		f.t.Error("second concurrent Recv on one stream")
	}
	return func() { f.inRecv.Store(false) }
}

var errBrokenStream = errors.New("transport broken")

// fakeGetStream records what the Get handler sends. failAt breaks the
// transport on the n-th Send (0-based); -1 disables.
type fakeGetStream struct {
	*fakeServerStream
	mu     sync.Mutex
	sent   []*wire.GetResponse
	failAt int
}

func newFakeGetStream(t *testing.T) *fakeGetStream {
	return &fakeGetStream{fakeServerStream: newFakeServerStream(t), failAt: -1}
}

func (f *fakeGetStream) Send(r *wire.GetResponse) error {
	defer f.enterSend()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt >= 0 && len(f.sent) == f.failAt {
		return errBrokenStream
	}
	cp := *r
	cp.Data = append([]byte(nil), r.Data...)
	f.sent = append(f.sent, &cp)
	return nil
}

func (f *fakeGetStream) responses() []*wire.GetResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wire.GetResponse(nil), f.sent...)
}

// fakePutStream feeds scripted requests to the Put handler and records
// its single terminal response.
type fakePutStream struct {
	*fakeServerStream
	mu   sync.Mutex
	reqs []*wire.PutRequest
	next int
	resp *wire.PutResponse
}

func newFakePutStream(t *testing.T, reqs ...*wire.PutRequest) *fakePutStream {
	return &fakePutStream{fakeServerStream: newFakeServerStream(t), reqs: reqs}
}

func (f *fakePutStream) Recv() (*wire.PutRequest, error) {
	defer f.enterRecv()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.reqs) {
		return nil, io.EOF
	}
	r := f.reqs[f.next]
	f.next++
	return r, nil
}

func (f *fakePutStream) SendAndClose(r *wire.PutResponse) error {
	defer f.enterSend()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resp = r
	return nil
}

func (f *fakePutStream) response() *wire.PutResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resp
}

// fakeExecStream feeds requests through a channel (closing it is the
// client's half-close) and records every response.
type fakeExecStream struct {
	*fakeServerStream
	in     chan *wire.ExecRequest
	mu     sync.Mutex
	sent   []*wire.ExecResponse
	failAt int
}

// newFakeExecStream preloads the requests and half-closes immediately.
func newFakeExecStream(t *testing.T, reqs ...*wire.ExecRequest) *fakeExecStream {
	f := newFakeExecStreamOpen(t, len(reqs))
	for _, r := range reqs {
		f.in <- r
	}
	close(f.in)
	return f
}

// newFakeExecStreamOpen leaves the request channel open; the test
// pushes to f.in and closes it itself.
func newFakeExecStreamOpen(t *testing.T, buffer int) *fakeExecStream {
	return &fakeExecStream{
		fakeServerStream: newFakeServerStream(t),
		in:               make(chan *wire.ExecRequest, buffer+1),
		failAt:           -1,
	}
}

func (f *fakeExecStream) Recv() (*wire.ExecRequest, error) {
	defer f.enterRecv()()
	r, ok := <-f.in
	if !ok {
		return nil, io.EOF
	}
	return r, nil
}

func (f *fakeExecStream) Send(r *wire.ExecResponse) error {
	defer f.enterSend()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt >= 0 && len(f.sent) == f.failAt {
		return errBrokenStream
	}
	cp := *r
	cp.Stdout = append([]byte(nil), r.Stdout...)
	cp.Stderr = append([]byte(nil), r.Stderr...)
	f.sent = append(f.sent, &cp)
	return nil
}

func (f *fakeExecStream) responses() []*wire.ExecResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wire.ExecResponse(nil), f.sent...)
}
