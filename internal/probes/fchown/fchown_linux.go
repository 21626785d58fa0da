package fchown

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/spin-stack/syscall-probes/internal/harness"
)

// TCID identifies the fchown error-path probe.
const TCID = "fchown04"

const dirMode = 0o755

type fchownCase struct {
	harness.Case
	fd func(*fchownState) int
}

var cases = []fchownCase{
	{
		// root-owned file, caller is not the owner
		Case: harness.Case{Name: "not owner", Expected: unix.EPERM},
		fd:   func(s *fchownState) int { return int(s.owned.Fd()) },
	},
	{
		Case: harness.Case{Name: "bad descriptor", Expected: unix.EBADF},
		fd:   func(*fchownState) int { return -1 },
	},
	{
		Case: harness.Case{Name: "read-only filesystem", Expected: unix.EROFS},
		fd:   func(s *fchownState) int { return int(s.readOnly.Fd()) },
	},
}

type fchownState struct {
	owned    *os.File
	readOnly *os.File
}

// Tests returns the fchown probes.
func Tests() []harness.Test {
	s := &fchownState{}
	return []harness.Test{{
		TCID:        TCID,
		Summary:     "fchown fails with EPERM, EBADF and EROFS as an unprivileged user",
		NeedsRoot:   true,
		NeedsDevice: true,
		Setup:       s.setup,
		Iterate:     s.iterate,
	}}
}

func (s *fchownState) setup(env *harness.Env) error {
	owned, err := os.OpenFile(env.Path("tfile_1"), os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return harness.Broken("open tfile_1", err)
	}
	s.owned = owned
	env.Cleanup.Push("close tfile_1", closeFile(owned))

	if _, err := env.AcquireDevice(); err != nil {
		return err
	}
	mnt, err := env.Mkdir("mntpoint", dirMode)
	if err != nil {
		return err
	}
	if err := env.MountDevice(mnt); err != nil {
		return err
	}

	target := filepath.Join(mnt, "tfile_3")
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return harness.Broken("touch tfile_3", err)
	}
	if err := f.Close(); err != nil {
		return harness.Broken("touch tfile_3", err)
	}

	if err := env.Mounts.RemountReadOnly(mnt); err != nil {
		return harness.Broken("remount mntpoint read-only", err)
	}

	readOnly, err := os.Open(target)
	if err != nil {
		return harness.Broken("open tfile_3", err)
	}
	s.readOnly = readOnly
	env.Cleanup.Push("close tfile_3", closeFile(readOnly))

	return env.DropPrivileges()
}

func (s *fchownState) iterate(env *harness.Env) error {
	uid, gid := unix.Geteuid(), unix.Getegid()
	for _, c := range cases {
		fd := c.fd(s)
		out := harness.Invoke(func() error {
			return unix.Fchown(fd, uid, gid)
		})
		env.ExpectErrno("fchown", out, c.Expected)
	}
	return nil
}

func closeFile(f *os.File) func(context.Context) error {
	return func(context.Context) error {
		return f.Close()
	}
}
