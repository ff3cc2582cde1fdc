// Package common defines the sentinel errors shared by the client and
// agent layers of vmcourier, and the translation from wire statuses to
// those sentinels. Callers match with errors.Is.
package common

import (
	"errors"

	"github.com/virtbridge/vmcourier/internal/wire"
)

var (
	// Transport-level errors.
	ErrPeerClosed = errors.New("peer closed")

	// File exchange errors.
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
	ErrIO         = errors.New("i/o failure")

	// Exec errors.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")

	// ErrBadState covers status codes this build does not know about.
	ErrBadState = errors.New("bad state")

	// ErrWouldBlock reports that a non-blocking descriptor had no data
	// (or no room) right now. It never crosses the wire; senders turn
	// it into an empty keepalive fragment.
	ErrWouldBlock = errors.New("operation would block")
)

// StatusError is a non-OK wire status dressed up as an error. It
// unwraps to the sentinel for the status's failure class, so callers
// can either match the class with errors.Is or pull the exact status
// back out with errors.As.
type StatusError struct {
	Status wire.OperationStatus
	Err    error
}

func (e *StatusError) Error() string {
	return e.Status.String() + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }

// Translate maps a wire status to an error carrying the sentinel for
// its failure class. The status name stays in the message so logs still
// show which side of the exchange failed.
func Translate(s wire.OperationStatus) error {
	var sentinel error
	switch s {
	case wire.StatusOK:
		return nil
	case wire.StatusGRPCFailure:
		sentinel = ErrPeerClosed
	case wire.StatusClientMissingFile, wire.StatusServerMissingFile:
		sentinel = ErrNotFound
	case wire.StatusClientCreateFile, wire.StatusServerCreateFile:
		sentinel = ErrPermission
	case wire.StatusClientFileRead, wire.StatusClientFileWrite,
		wire.StatusServerFileRead, wire.StatusServerFileWrite:
		sentinel = ErrIO
	case wire.StatusServerExecParse:
		sentinel = ErrInvalidArgument
	case wire.StatusServerExecFork:
		sentinel = ErrInternal
	default:
		sentinel = ErrBadState
	}
	return &StatusError{Status: s, Err: sentinel}
}
