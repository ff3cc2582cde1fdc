package wire

import "fmt"

// OperationStatus is the protocol-level outcome of a transfer or exec
// call, carried inside response messages. It is distinct from the
// transport-level error a stream can fail with: a response with a non-OK
// OperationStatus still arrives over a healthy stream.
//
// The numeric values are wire format. Never renumber.
type OperationStatus uint32

const (
	// StatusOK means the operation unit succeeded.
	StatusOK OperationStatus = 0

	// StatusGRPCFailure means the transport died under the call. It is
	// produced locally, never carried in a well-formed response.
	StatusGRPCFailure OperationStatus = 1

	// Client-side local failures, reported by courierctl.
	StatusClientMissingFile OperationStatus = 2
	StatusClientCreateFile  OperationStatus = 3
	StatusClientFileRead    OperationStatus = 4
	StatusClientFileWrite   OperationStatus = 5

	// Server-side local failures, converted to a response status by the
	// agent before the call finishes. The agent never drops a call
	// silently.
	StatusServerMissingFile OperationStatus = 6
	StatusServerCreateFile  OperationStatus = 7
	StatusServerFileRead    OperationStatus = 8
	StatusServerFileWrite   OperationStatus = 9

	// Exec-specific server failures.
	StatusServerExecParse OperationStatus = 10
	StatusServerExecFork  OperationStatus = 11
)

// String returns the canonical status name, as recorded in logs and the
// operation journal.
func (s OperationStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusGRPCFailure:
		return "GRPC_FAILURE"
	case StatusClientMissingFile:
		return "CLIENT_MISSING_FILE_FAILURE"
	case StatusClientCreateFile:
		return "CLIENT_CREATE_FILE_FAILURE"
	case StatusClientFileRead:
		return "CLIENT_FILE_READ_FAILURE"
	case StatusClientFileWrite:
		return "CLIENT_FILE_WRITE_FAILURE"
	case StatusServerMissingFile:
		return "SERVER_MISSING_FILE_FAILURE"
	case StatusServerCreateFile:
		return "SERVER_CREATE_FILE_FAILURE"
	case StatusServerFileRead:
		return "SERVER_FILE_READ_FAILURE"
	case StatusServerFileWrite:
		return "SERVER_FILE_WRITE_FAILURE"
	case StatusServerExecParse:
		return "SERVER_EXEC_COMMAND_PARSE_FAILURE"
	case StatusServerExecFork:
		return "SERVER_EXEC_FORK_FAILURE"
	}
	return fmt.Sprintf("UNKNOWN_STATUS_%d", uint32(s))
}
