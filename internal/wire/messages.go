package wire

const (
	// DefaultPort is the well-known vsock port the agent listens on
	// inside the guest.
	DefaultPort = 2280

	// DefaultFragmentSize bounds every streamed payload piece: file
	// data, stdin, stdout and stderr. Both directions of a deployment
	// must fragment with the same bound.
	DefaultFragmentSize = 1024
)

// GetRequest opens a Get call: pull the file at SourcePath out of the
// guest. It is the only client message on a Get stream.
type GetRequest struct {
	SourcePath string `cbor:"source_path"`
}

// GetResponse is one fragment of the pulled file. Empty Data is a no-op
// for the receiver: it marks either end-of-file (the stream closes right
// after) or a no-progress keepalive while the agent's source descriptor
// is not ready. A non-OK Status terminates the transfer; any Data
// alongside it is ignored.
type GetResponse struct {
	Status OperationStatus `cbor:"status"`
	Data   []byte          `cbor:"data,omitempty"`
}

// PutRequest is one fragment of a pushed file. DestPath is read from the
// first message only. Empty Data is a no-progress keepalive; end of
// upload is signaled by half-closing the stream, not by a sentinel
// fragment.
type PutRequest struct {
	DestPath string `cbor:"dest_path,omitempty"`
	Data     []byte `cbor:"data,omitempty"`
}

// PutResponse is the single terminal response of a Put call.
type PutResponse struct {
	Status OperationStatus `cbor:"status"`
}

// ExecRequest drives an Exec call. The first message carries the command
// line and the complete child environment (the child inherits nothing
// from the agent); Stdin may ride along. Every later message carries
// stdin bytes only, with an empty fragment serving as keepalive when the
// local stdin source is not ready.
type ExecRequest struct {
	Command string            `cbor:"command,omitempty"`
	Env     map[string]string `cbor:"env,omitempty"`
	Stdin   []byte            `cbor:"stdin,omitempty"`
}

// ExecResponse carries command output back to the host. Intermediate
// responses hold stdout/stderr fragments only. The final response sets
// Exited and carries the child's exit code together with the final
// Status; nothing follows it on the stream.
type ExecResponse struct {
	Status   OperationStatus `cbor:"status"`
	Stdout   []byte          `cbor:"stdout,omitempty"`
	Stderr   []byte          `cbor:"stderr,omitempty"`
	ExitCode int32           `cbor:"exit_code,omitempty"`
	Exited   bool            `cbor:"exited,omitempty"`
}
