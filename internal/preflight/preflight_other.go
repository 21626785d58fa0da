//go:build !linux

// Package preflight checks that the host can run the probes at all.
package preflight

import "github.com/containerd/errdefs"

// MinKernelVersion is the minimum required kernel version.
const MinKernelVersion = "3.1"

// Requirements describes what a set of probes needs from the host.
type Requirements struct {
	Root        bool
	FSType      string
	LoopControl string
	Image       string
}

// Check runs all preflight checks.
// On non-Linux platforms, this returns ErrNotImplemented.
func Check(req Requirements) error {
	return errdefs.ErrNotImplemented
}

func RequireRoot() error {
	return errdefs.ErrNotImplemented
}

// KernelVersion returns the current kernel version.
func KernelVersion() (string, error) {
	return "", errdefs.ErrNotImplemented
}

// CompareVersions compares two version strings.
func CompareVersions(v1, v2 string) (int, error) {
	return 0, errdefs.ErrNotImplemented
}

// CheckKernelVersion checks if the running kernel meets the minimum version requirement.
func CheckKernelVersion(minVersion string) error {
	return errdefs.ErrNotImplemented
}

func CheckFilesystem(fstype string) error {
	return errdefs.ErrNotImplemented
}

func CheckLoopControl(path string) error {
	return errdefs.ErrNotImplemented
}

func CheckImage(path string) error {
	return errdefs.ErrNotImplemented
}
