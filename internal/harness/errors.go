package harness

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// ErrorCode represents the type of harness error for programmatic handling.
type ErrorCode int

const (
	// ErrCodeUnknown indicates an unclassified error.
	ErrCodeUnknown ErrorCode = iota
	// ErrCodeBroken indicates setup or teardown failed and the run must stop.
	ErrCodeBroken
	// ErrCodeConf indicates the host cannot run the probe at all.
	ErrCodeConf
)

// String returns the string representation of an error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeBroken:
		return "BROKEN"
	case ErrCodeConf:
		return "CONF"
	default:
		return "UNKNOWN"
	}
}

// ProbeError is implemented by every error the harness classifies.
type ProbeError interface {
	error
	Code() ErrorCode
}

// IsErrorCode checks if an error has the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var pe ProbeError
	if errors.As(err, &pe) {
		return pe.Code() == code
	}
	return false
}

// BrokenError indicates infrastructure outside the syscall under test failed:
// acquiring the loop device, mounting, switching users, forking a child.
type BrokenError struct {
	Op    string // operation that failed, e.g. "mount mnt_src"
	Cause error  // Underlying error
}

func (e *BrokenError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

// Code returns the error code for programmatic handling.
func (e *BrokenError) Code() ErrorCode {
	return ErrCodeBroken
}

func (e *BrokenError) Unwrap() error {
	return e.Cause
}

// ConfError indicates the host lacks something the probe needs, such as
// root privileges or a registered filesystem.
type ConfError struct {
	Cause error
}

func (e *ConfError) Error() string {
	return e.Cause.Error()
}

// Code returns the error code for programmatic handling.
func (e *ConfError) Code() ErrorCode {
	return ErrCodeConf
}

func (e *ConfError) Unwrap() error {
	return e.Cause
}

// Broken wraps err as a BrokenError for op. It returns nil for a nil err.
func Broken(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BrokenError{Op: op, Cause: err}
}

// Brokenf creates a BrokenError without an underlying cause.
func Brokenf(op, format string, args ...any) error {
	return &BrokenError{Op: op, Cause: fmt.Errorf(format, args...)}
}

// IsConf returns true if err is or wraps a ConfError.
func IsConf(err error) bool {
	return IsErrorCode(err, ErrCodeConf)
}

// classify turns a preflight failure into a ConfError when the host simply
// does not support the probe, and into a BrokenError otherwise.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errdefs.IsPermissionDenied(err) || errdefs.IsNotImplemented(err) {
		return &ConfError{Cause: err}
	}
	return Broken(op, err)
}
