// Package privilege switches the effective credentials of the whole process
// so a probe can issue a syscall as an unprivileged user and return to root
// for teardown.
package privilege

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"

	"github.com/containerd/errdefs"
)

// DefaultUser is the account probes drop to.
const DefaultUser = "nobody"

// Identity is a resolved account.
type Identity struct {
	Name string
	UID  int
	GID  int
}

// Root is uid 0 / gid 0.
var Root = Identity{Name: "root"}

// Lookup resolves name to its uid and primary gid.
func Lookup(name string) (Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return Identity{}, fmt.Errorf("user %q: %w", name, errdefs.ErrNotFound)
		}
		return Identity{}, fmt.Errorf("failed to look up user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("user %q has non-numeric uid %q", name, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("user %q has non-numeric gid %q", name, u.Gid)
	}
	return Identity{Name: name, UID: uid, GID: gid}, nil
}

// With runs fn with the effective credentials of id and restores the
// previous credentials afterwards, even when fn fails.
func With(id Identity, fn func() error) error {
	restore, err := Drop(id)
	if err != nil {
		return err
	}
	ferr := fn()
	if rerr := restore(); rerr != nil {
		return errors.Join(ferr, rerr)
	}
	return ferr
}

// AsRoot runs fn with effective uid 0. The saved uid must still be 0.
func AsRoot(fn func() error) error {
	return With(Root, fn)
}
