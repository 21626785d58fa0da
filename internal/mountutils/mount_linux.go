/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package mountutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/containerd/v2/core/mount"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

var unmountAll = mount.UnmountAll

// MountDevice mounts the block device source read-write at target.
func MountDevice(source, target, fstype string) error {
	st, err := os.Stat(source)
	if err != nil {
		return &MountError{Op: "mount", Source: source, Target: target, Cause: err}
	}
	if st.Mode()&os.ModeDevice == 0 {
		return &MountError{Op: "mount", Source: source, Target: target, Cause: ErrNotBlockDevice}
	}

	m := mount.Mount{
		Source:  source,
		Type:    fstype,
		Options: []string{"rw"},
	}
	if err := m.Mount(target); err != nil {
		return &MountError{Op: "mount", Source: source, Target: target, Cause: err}
	}
	return nil
}

// RemountReadOnly re-applies an already mounted filesystem as read-only.
// containerd's option parser skips a remount that carries no data, so this
// goes to the syscall directly.
func RemountReadOnly(source, target, fstype string) error {
	const flags = unix.MS_REMOUNT | unix.MS_RDONLY
	if err := unix.Mount(source, target, fstype, flags, ""); err != nil {
		return &MountError{Op: "remount", Source: source, Target: target, Flags: flags, Cause: err}
	}
	return nil
}

// MakePrivate bind-mounts dir onto itself and marks it MS_PRIVATE.
// The kernel refuses MS_MOVE when the parent of the moved mount is shared.
func MakePrivate(dir string) error {
	m := mount.Mount{
		Source:  dir,
		Type:    "bind",
		Options: []string{"bind", "private"},
	}
	if err := m.Mount(dir); err != nil {
		return &MountError{Op: "bind", Source: dir, Target: dir, Flags: unix.MS_BIND | unix.MS_PRIVATE, Cause: err}
	}
	return nil
}

// Move relocates the mount at source to target.
func Move(source, target string) error {
	if err := unix.Mount(source, target, "", unix.MS_MOVE, ""); err != nil {
		return &MountError{Op: "move", Source: source, Target: target, Flags: unix.MS_MOVE, Cause: err}
	}
	return nil
}

// Unmount removes every mount stacked on target. If normal unmount fails
// (e.g., due to EBUSY), it falls back to lazy unmount (MNT_DETACH).
//
// Returns nil if the path was not mounted (EINVAL) or doesn't exist (ENOENT).
func Unmount(target string) error {
	if err := unmountAll(target, 0); err != nil {
		if isNotMountError(err) {
			return nil
		}
		if derr := unmountAll(target, unix.MNT_DETACH); derr != nil {
			if isNotMountError(derr) {
				return nil
			}
			return &MountError{Op: "unmount", Target: target, Cause: fmt.Errorf("unmount failed (%v), lazy unmount also failed: %w", err, derr)}
		}
	}
	return nil
}

// IsMounted reports whether target is a mount point.
func IsMounted(target string) (bool, error) {
	return mountinfo.Mounted(target)
}

// Lookup returns the topmost mountinfo entry for target, or nil when
// nothing is mounted there.
func Lookup(target string) (*mountinfo.Info, error) {
	target, err := canonical(target)
	if err != nil {
		return nil, err
	}
	mounts, err := mountinfo.GetMounts(func(i *mountinfo.Info) (skip, stop bool) {
		return i.Mountpoint != target, false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read mountinfo: %w", err)
	}
	if len(mounts) == 0 {
		return nil, nil
	}
	return mounts[len(mounts)-1], nil
}

// IsReadOnly reports whether the mount at target carries the "ro" option.
func IsReadOnly(target string) (bool, error) {
	info, err := Lookup(target)
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, fmt.Errorf("%s is not a mount point", target)
	}
	for _, opt := range strings.Split(info.Options, ",") {
		if opt == "ro" {
			return true, nil
		}
	}
	return false, nil
}

func canonical(p string) (string, error) {
	p, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(p)
}
