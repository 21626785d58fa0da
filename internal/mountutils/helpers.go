//go:build linux

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

// Package mountutils mounts, remounts, moves and unmounts the filesystems
// probes run against, and tracks which of them a run still owns.
package mountutils

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	remountReadOnlyFlags = unix.MS_REMOUNT | unix.MS_RDONLY
	privateBindFlags     = unix.MS_BIND | unix.MS_PRIVATE
	moveFlags            = unix.MS_MOVE
)

var flagNames = []struct {
	flag uintptr
	name string
}{
	{unix.MS_RDONLY, "ro"},
	{unix.MS_NOSUID, "nosuid"},
	{unix.MS_NODEV, "nodev"},
	{unix.MS_NOEXEC, "noexec"},
	{unix.MS_REMOUNT, "remount"},
	{unix.MS_BIND, "bind"},
	{unix.MS_MOVE, "move"},
	{unix.MS_REC, "rec"},
	{unix.MS_PRIVATE, "private"},
	{unix.MS_SLAVE, "slave"},
	{unix.MS_SHARED, "shared"},
}

// FlagString renders mount flags for log output, e.g. "ro|remount".
// Zero renders as "rw"; unknown bits are appended in hex.
func FlagString(flags uintptr) string {
	if flags == 0 {
		return "rw"
	}
	var parts []string
	for _, f := range flagNames {
		if flags&f.flag != 0 {
			parts = append(parts, f.name)
			flags &^= f.flag
		}
	}
	if flags != 0 {
		parts = append(parts, fmt.Sprintf("%#x", flags))
	}
	return strings.Join(parts, "|")
}

// isNotMountError returns true if the error indicates the target was not mounted.
// EINVAL: target is not a mount point. ENOENT: path doesn't exist.
func isNotMountError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT) || os.IsNotExist(err)
}
