//go:build !linux

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
	"runtime"

	"github.com/containerd/errdefs"
)

const (
	remountReadOnlyFlags = 0
	privateBindFlags     = 0
	moveFlags            = 0
)

var errUnsupported = fmt.Errorf("mounts not supported on %s: %w", runtime.GOOS, errdefs.ErrNotImplemented)

// MountDevice mounts the block device source read-write at target.
func MountDevice(source, target, fstype string) error {
	return errUnsupported
}

// RemountReadOnly re-applies an already mounted filesystem as read-only.
func RemountReadOnly(source, target, fstype string) error {
	return errUnsupported
}

// MakePrivate bind-mounts dir onto itself with private propagation.
func MakePrivate(dir string) error {
	return errUnsupported
}

// Move relocates the mount at source to target.
func Move(source, target string) error {
	return errUnsupported
}

// Unmount removes every mount stacked on target.
func Unmount(target string) error {
	return nil
}

// IsMounted reports whether target is a mount point.
func IsMounted(target string) (bool, error) {
	return false, errUnsupported
}

// IsReadOnly reports whether the mount at target is read-only.
func IsReadOnly(target string) (bool, error) {
	return false, errUnsupported
}

// FlagString renders mount flags for log output.
func FlagString(flags uintptr) string {
	return fmt.Sprintf("%#x", flags)
}
