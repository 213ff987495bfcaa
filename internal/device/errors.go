package device

import "github.com/pkg/errors"

// ConnError marks a transient connectivity failure (refused connection,
// timeout, mid-session read failure). The engine reacts to it with its
// bounded reconnect policy.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return "device: " + e.Op + ": " + e.Err.Error()
}

func (e *ConnError) Unwrap() error { return e.Err }

// Connectivity wraps err as a connectivity failure. A nil err returns nil.
func Connectivity(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnError{Op: op, Err: err}
}

// IsConnectivity reports whether err is (or wraps) a connectivity failure.
func IsConnectivity(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
