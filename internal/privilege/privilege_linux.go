package privilege

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
	"kernel.org/pub/linux/libs/security/libcap/psx"
)

const keep = ^uintptr(0)

// Drop switches the effective uid and gid of every OS thread to id. The
// real and saved ids are left alone, so the returned restore can switch
// back to the credentials in effect before the call.
func Drop(id Identity) (restore func() error, err error) {
	prevUID, prevGID := unix.Geteuid(), unix.Getegid()

	if err := switchTo(id.UID, id.GID); err != nil {
		return nil, err
	}
	return func() error {
		return switchTo(prevUID, prevGID)
	}, nil
}

// switchTo sets the effective gid before the effective uid. In either
// direction both steps only need the real ids to be 0.
func switchTo(uid, gid int) error {
	prevGID := unix.Getegid()
	if err := setEffectiveGID(gid); err != nil {
		return err
	}
	if err := setEffectiveUID(uid); err != nil {
		if rerr := setEffectiveGID(prevGID); rerr != nil {
			return fmt.Errorf("%w (restoring egid %d: %v)", err, prevGID, rerr)
		}
		return err
	}
	return nil
}

func setEffectiveUID(uid int) error {
	if _, _, errno := psx.Syscall3(unix.SYS_SETRESUID, keep, uintptr(uid), keep); errno != 0 {
		return fmt.Errorf("seteuid(%d): %w", uid, syscall.Errno(errno))
	}
	return nil
}

func setEffectiveGID(gid int) error {
	if _, _, errno := psx.Syscall3(unix.SYS_SETRESGID, keep, uintptr(gid), keep); errno != 0 {
		return fmt.Errorf("setegid(%d): %w", gid, syscall.Errno(errno))
	}
	return nil
}
