// Package wire defines the vmcourier wire protocol: the message types
// exchanged between courierctl and courier-agent, the OperationStatus
// outcome codes they carry, and the gRPC service plumbing (service
// descriptor, stream wrappers, codec) that moves them.
//
// The service has exactly three methods and a fixed schema:
//
//	Get  — server-streaming: pull a file out of the guest
//	Put  — client-streaming: push a file into the guest
//	Exec — bidirectional:    run a command with streamed stdio
//
// Messages are encoded as CBOR rather than protobuf, so the guest build
// needs no code generation step. The service descriptor and stream
// wrappers below are hand-maintained and follow the shape protoc-gen-go-grpc
// would emit; keep them in sync with the message structs when the schema
// changes (it should not — growing the schema is out of scope for this
// protocol).
package wire
