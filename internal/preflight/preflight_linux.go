// Package preflight checks that the host can run the probes at all. Every
// failure wraps an errdefs class so callers can tell an unsupported
// environment from a broken one.
package preflight

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/syscall-probes/internal/loop"
)

// MinKernelVersion is the minimum required kernel version.
// /dev/loop-control appeared in 3.1.
const MinKernelVersion = "3.1"

var procFilesystems = "/proc/filesystems"

// Requirements describes what a set of probes needs from the host.
type Requirements struct {
	Root        bool
	FSType      string
	LoopControl string
	Image       string
}

// Check runs the checks selected by req and returns the first failure.
func Check(req Requirements) error {
	if err := CheckKernelVersion(MinKernelVersion); err != nil {
		return err
	}
	if req.Root {
		if err := RequireRoot(); err != nil {
			return err
		}
	}
	if req.FSType != "" {
		if err := CheckFilesystem(req.FSType); err != nil {
			return err
		}
	}
	if req.LoopControl != "" {
		if err := CheckLoopControl(req.LoopControl); err != nil {
			return err
		}
	}
	if req.Image != "" {
		if err := CheckImage(req.Image); err != nil {
			return err
		}
	}
	return nil
}

// RequireRoot fails with ErrPermissionDenied unless the effective uid is 0.
func RequireRoot() error {
	if euid := unix.Geteuid(); euid != 0 {
		return fmt.Errorf("test must be run as root (euid %d): %w", euid, errdefs.ErrPermissionDenied)
	}
	return nil
}

// KernelVersion returns the current kernel version as a string (e.g., "6.16.0").
func KernelVersion() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", fmt.Errorf("uname failed: %w", err)
	}
	return unix.ByteSliceToString(uname.Release[:]), nil
}

// parseVersion parses a kernel version string into major, minor, patch components.
// Handles versions like "6.16.0", "6.16.0-rc1", "6.16.0-generic", etc.
func parseVersion(version string) (major, minor, patch int, err error) {
	version, _, _ = strings.Cut(version, "-")

	nums := strings.Split(version, ".")
	if len(nums) < 2 {
		return 0, 0, 0, fmt.Errorf("invalid version format: %s", version)
	}

	major, err = strconv.Atoi(nums[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid major version: %s", nums[0])
	}

	minor, err = strconv.Atoi(nums[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid minor version: %s", nums[1])
	}

	if len(nums) >= 3 {
		// "18+" style suffixes: keep the leading digits
		patchStr := nums[2]
		for i, c := range patchStr {
			if c < '0' || c > '9' {
				patchStr = patchStr[:i]
				break
			}
		}
		if patchStr != "" {
			patch, _ = strconv.Atoi(patchStr)
		}
	}

	return major, minor, patch, nil
}

// CompareVersions compares two version strings.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2.
func CompareVersions(v1, v2 string) (int, error) {
	maj1, min1, pat1, err := parseVersion(v1)
	if err != nil {
		return 0, err
	}

	maj2, min2, pat2, err := parseVersion(v2)
	if err != nil {
		return 0, err
	}

	for _, pair := range [][2]int{{maj1, maj2}, {min1, min2}, {pat1, pat2}} {
		if pair[0] < pair[1] {
			return -1, nil
		}
		if pair[0] > pair[1] {
			return 1, nil
		}
	}
	return 0, nil
}

// CheckKernelVersion checks if the running kernel meets the minimum version requirement.
func CheckKernelVersion(minVersion string) error {
	current, err := KernelVersion()
	if err != nil {
		return err
	}

	cmp, err := CompareVersions(current, minVersion)
	if err != nil {
		return fmt.Errorf("failed to compare versions: %w", err)
	}

	if cmp < 0 {
		return fmt.Errorf("kernel version %s is less than required %s: %w", current, minVersion, errdefs.ErrNotImplemented)
	}

	return nil
}

// CheckFilesystem checks that fstype is registered with the kernel.
func CheckFilesystem(fstype string) error {
	data, err := os.ReadFile(procFilesystems)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", procFilesystems, err)
	}
	if !isRegistered(data, fstype) {
		return fmt.Errorf("%s filesystem not available, please run: modprobe %s: %w", fstype, fstype, errdefs.ErrNotImplemented)
	}
	return nil
}

// isRegistered matches both "\text4\n" and "nodev\ttmpfs\n" lines.
func isRegistered(data []byte, fstype string) bool {
	return bytes.Contains(data, []byte("\t"+fstype+"\n"))
}

// CheckLoopControl checks that path is the loop control character device.
func CheckLoopControl(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("loop control %s missing, please run: modprobe loop: %w", path, errdefs.ErrNotFound)
		}
		return fmt.Errorf("failed to stat loop control %s: %w", path, err)
	}
	if st.Mode()&os.ModeCharDevice == 0 {
		return fmt.Errorf("%s is not a character device: %w", path, errdefs.ErrInvalidArgument)
	}
	return nil
}

// CheckImage checks that the backing image exists, is a regular file and is
// not already bound to a loop device.
func CheckImage(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("image %s not found: %w", path, errdefs.ErrNotFound)
		}
		return fmt.Errorf("failed to stat image %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("image %s is not a regular file: %w", path, errdefs.ErrInvalidArgument)
	}
	// without sysfs there is nothing to compare against
	if dev, err := loop.FindByBackingFile(path); err == nil && dev != nil {
		return fmt.Errorf("image %s is already bound to %s: %w", path, dev.Path, errdefs.ErrAlreadyExists)
	}
	return nil
}
