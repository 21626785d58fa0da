package mountutils

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBlockDevice is returned when a device mount is given a source
	// that is not a block device.
	ErrNotBlockDevice = errors.New("source is not a block device")
	// ErrNoSource is returned when a mount is attempted without a bound
	// device or bind source.
	ErrNoSource = errors.New("mount source is not set")
	// ErrNotTracked is returned for operations on a target the tracker
	// does not own.
	ErrNotTracked = errors.New("mount point is not tracked")
)

// MountError indicates a mount operation failed.
type MountError struct {
	Op     string // mount, remount, bind, move, unmount
	Source string
	Target string
	Flags  uintptr
	Cause  error
}

func (e *MountError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s %s failed: %v", e.Op, e.Target, e.Cause)
	}
	return fmt.Sprintf("%s %s on %s (%s) failed: %v", e.Op, e.Source, e.Target, FlagString(e.Flags), e.Cause)
}

func (e *MountError) Unwrap() error {
	return e.Cause
}
