package offline

import (
	"errors"
	"fmt"
)

// Code classifies a remote failure without exposing transport details.
type Code string

const (
	CodeNetwork      Code = "network"
	CodeTimeout      Code = "timeout"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInvalid      Code = "invalid"
	CodeServer       Code = "server"
	CodeUnknown      Code = "unknown"
)

// ErrDuplicate is returned when creating a value whose local key is already cached.
var ErrDuplicate = errors.New("already exists")

// RemoteError reports a failed call to the remote API.
type RemoteError struct {
	Op     string
	Entity string
	Code   Code
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s %s: %s: %v", e.Op, e.Entity, e.Code, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call later may succeed.
func (e *RemoteError) Temporary() bool {
	switch e.Code {
	case CodeNetwork, CodeTimeout, CodeServer:
		return true
	default:
		return false
	}
}

// IsRemoteError reports whether err is or wraps a RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsNotFound reports whether err is a remote not-found failure.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == CodeNotFound
}

// ConnectivityError reports a remote operation attempted while known to be
// offline. The engine checks connectivity first, so it is not normally
// surfaced.
type ConnectivityError struct {
	Op     string
	Entity string
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s %s: not connected", e.Op, e.Entity)
}

// RollbackError reports a compensating action that failed after a remote
// failure. It is logged and never returned in place of the remote error.
type RollbackError struct {
	Op     string
	Entity string
	// Cause is the remote failure that triggered the rollback.
	Cause error
	Err   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback %s %s after %v: %v", e.Op, e.Entity, e.Cause, e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}
