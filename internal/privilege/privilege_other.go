//go:build !linux

package privilege

import "github.com/containerd/errdefs"

// Drop is not supported outside Linux.
func Drop(id Identity) (restore func() error, err error) {
	return nil, errdefs.ErrNotImplemented
}
