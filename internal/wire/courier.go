package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "vmcourier.Courier"

const (
	methodGet  = "/vmcourier.Courier/Get"
	methodPut  = "/vmcourier.Courier/Put"
	methodExec = "/vmcourier.Courier/Exec"
)

// CourierClient is the host-side view of the service. One stream object
// per call; the per-stream concurrency contract is the substrate's: at
// most one goroutine sending and one receiving at any instant.
type CourierClient interface {
	// Get opens a server-streaming pull of one file.
	Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (Courier_GetClient, error)
	// Put opens a client-streaming push of one file.
	Put(ctx context.Context, opts ...grpc.CallOption) (Courier_PutClient, error)
	// Exec opens a bidirectional command execution.
	Exec(ctx context.Context, opts ...grpc.CallOption) (Courier_ExecClient, error)
}

type courierClient struct {
	cc grpc.ClientConnInterface
}

// NewCourierClient returns a CourierClient on the given connection. The
// connection must carry the CBOR codec as its default call option (see
// netx.Dial, which sets it up).
func NewCourierClient(cc grpc.ClientConnInterface) CourierClient {
	return &courierClient{cc}
}

func (c *courierClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (Courier_GetClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodGet, opts...)
	if err != nil {
		return nil, err
	}
	x := &courierGetClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *courierClient) Put(ctx context.Context, opts ...grpc.CallOption) (Courier_PutClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], methodPut, opts...)
	if err != nil {
		return nil, err
	}
	return &courierPutClient{stream}, nil
}

func (c *courierClient) Exec(ctx context.Context, opts ...grpc.CallOption) (Courier_ExecClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[2], methodExec, opts...)
	if err != nil {
		return nil, err
	}
	return &courierExecClient{stream}, nil
}

// Courier_GetClient receives file fragments until io.EOF.
type Courier_GetClient interface {
	Recv() (*GetResponse, error)
	grpc.ClientStream
}

type courierGetClient struct {
	grpc.ClientStream
}

func (x *courierGetClient) Recv() (*GetResponse, error) {
	m := new(GetResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Courier_PutClient sends file fragments and collects the single
// terminal response via CloseAndRecv.
type Courier_PutClient interface {
	Send(*PutRequest) error
	CloseAndRecv() (*PutResponse, error)
	grpc.ClientStream
}

type courierPutClient struct {
	grpc.ClientStream
}

func (x *courierPutClient) Send(m *PutRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *courierPutClient) CloseAndRecv() (*PutResponse, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(PutResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Courier_ExecClient is the bidirectional exec stream.
type Courier_ExecClient interface {
	Send(*ExecRequest) error
	Recv() (*ExecResponse, error)
	grpc.ClientStream
}

type courierExecClient struct {
	grpc.ClientStream
}

func (x *courierExecClient) Send(m *ExecRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *courierExecClient) Recv() (*ExecResponse, error) {
	m := new(ExecResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// CourierServer is the guest-side contract implemented by the agent.
type CourierServer interface {
	Get(*GetRequest, Courier_GetServer) error
	Put(Courier_PutServer) error
	Exec(Courier_ExecServer) error
}

// UnimplementedCourierServer rejects every call with codes.Unimplemented.
// Embed it in partial test stubs.
type UnimplementedCourierServer struct{}

func (UnimplementedCourierServer) Get(*GetRequest, Courier_GetServer) error {
	return status.Error(codes.Unimplemented, "method Get not implemented")
}

func (UnimplementedCourierServer) Put(Courier_PutServer) error {
	return status.Error(codes.Unimplemented, "method Put not implemented")
}

func (UnimplementedCourierServer) Exec(Courier_ExecServer) error {
	return status.Error(codes.Unimplemented, "method Exec not implemented")
}

// Courier_GetServer streams file fragments to the host.
type Courier_GetServer interface {
	Send(*GetResponse) error
	grpc.ServerStream
}

type courierGetServer struct {
	grpc.ServerStream
}

func (x *courierGetServer) Send(m *GetResponse) error {
	return x.ServerStream.SendMsg(m)
}

// Courier_PutServer receives file fragments until io.EOF, then answers
// once via SendAndClose.
type Courier_PutServer interface {
	SendAndClose(*PutResponse) error
	Recv() (*PutRequest, error)
	grpc.ServerStream
}

type courierPutServer struct {
	grpc.ServerStream
}

func (x *courierPutServer) SendAndClose(m *PutResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *courierPutServer) Recv() (*PutRequest, error) {
	m := new(PutRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Courier_ExecServer is the bidirectional exec stream, server side.
type Courier_ExecServer interface {
	Send(*ExecResponse) error
	Recv() (*ExecRequest, error)
	grpc.ServerStream
}

type courierExecServer struct {
	grpc.ServerStream
}

func (x *courierExecServer) Send(m *ExecResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *courierExecServer) Recv() (*ExecRequest, error) {
	m := new(ExecRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func getHandler(srv any, stream grpc.ServerStream) error {
	m := new(GetRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(CourierServer).Get(m, &courierGetServer{stream})
}

func putHandler(srv any, stream grpc.ServerStream) error {
	return srv.(CourierServer).Put(&courierPutServer{stream})
}

func execHandler(srv any, stream grpc.ServerStream) error {
	return srv.(CourierServer).Exec(&courierExecServer{stream})
}

// ServiceDesc wires the three streaming methods to their handlers. The
// stream order is relied on by the client constructors above.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CourierServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Get",
			Handler:       getHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "Put",
			Handler:       putHandler,
			ClientStreams: true,
		},
		{
			StreamName:    "Exec",
			Handler:       execHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "internal/wire/messages.go",
}

// RegisterCourierServer registers srv on the given gRPC registrar.
func RegisterCourierServer(s grpc.ServiceRegistrar, srv CourierServer) {
	s.RegisterService(&ServiceDesc, srv)
}
