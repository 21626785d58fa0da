package mount

import (
	"golang.org/x/sys/unix"

	"github.com/spin-stack/syscall-probes/internal/harness"
	"github.com/spin-stack/syscall-probes/internal/mountutils"
	"github.com/spin-stack/syscall-probes/internal/result"
)

const dirMode = 0o755

// Tests returns the mount probes.
func Tests() []harness.Test {
	return []harness.Test{mount01(), mount04(), mount06()}
}

func trackedMount(env *harness.Env, source, target string, flags uintptr) harness.Outcome {
	out := harness.Invoke(func() error {
		return unix.Mount(source, target, env.Config.FSType, flags, "")
	})
	if !out.Failed() {
		// keep the mount visible to teardown until the probe removes it
		env.Mounts.Track(mountutils.MountPoint{Source: source, Target: target, FSType: env.Config.FSType, Flags: flags})
	}
	return out
}

// mount01 checks that root can mount the device and that the mount shows
// up in the mount table.
func mount01() harness.Test {
	var mnt string
	return harness.Test{
		TCID:        "mount01",
		Summary:     "mount succeeds as root and the mount point becomes visible",
		NeedsRoot:   true,
		NeedsDevice: true,
		Setup: func(env *harness.Env) error {
			if _, err := env.AcquireDevice(); err != nil {
				return err
			}
			var err error
			mnt, err = env.Mkdir("mntpoint", dirMode)
			return err
		},
		Iterate: func(env *harness.Env) error {
			out := trackedMount(env, env.Device.Path, mnt, 0)
			if out.Failed() {
				env.Report(result.Record{Outcome: result.Fail, Message: "mount() failed", Errno: out.Errno})
				return nil
			}

			mounted, err := mountutils.IsMounted(mnt)
			if err != nil {
				return harness.Broken("check mntpoint", err)
			}
			readOnly, err := mountutils.IsReadOnly(mnt)
			if err != nil {
				return harness.Broken("check mntpoint options", err)
			}
			switch {
			case !mounted:
				env.Reportf(result.Fail, "mount() succeeded but mntpoint is not mounted")
			case readOnly:
				env.Reportf(result.Fail, "mount() succeeded but mntpoint is read-only")
			default:
				env.Reportf(result.Pass, "mount() succeeded")
			}
			return env.Unmount(mnt)
		},
	}
}

// mount04 checks that an unprivileged user cannot mount the device.
func mount04() harness.Test {
	var mnt string
	return harness.Test{
		TCID:        "mount04",
		Summary:     "mount fails with EPERM as an unprivileged user",
		NeedsRoot:   true,
		NeedsDevice: true,
		Setup: func(env *harness.Env) error {
			if _, err := env.AcquireDevice(); err != nil {
				return err
			}
			if err := env.DropPrivileges(); err != nil {
				return err
			}
			var err error
			mnt, err = env.Mkdir("mntpoint", dirMode)
			return err
		},
		Iterate: func(env *harness.Env) error {
			out := trackedMount(env, env.Device.Path, mnt, 0)
			env.ExpectErrno("mount()", out, unix.EPERM)
			if out.Failed() {
				return nil
			}
			if err := env.AsRoot(func() error { return env.Mounts.Unmount(mnt) }); err != nil {
				return harness.Broken("umount()", err)
			}
			return nil
		},
	}
}

// mount06 checks that MS_MOVE relocates a mount: the destination becomes a
// mount point and the source stops being one.
func mount06() harness.Test {
	var src, des string
	return harness.Test{
		TCID:        "mount06",
		Summary:     "mount with MS_MOVE moves a mounted filesystem",
		NeedsRoot:   true,
		NeedsDevice: true,
		Setup: func(env *harness.Env) error {
			if _, err := env.AcquireDevice(); err != nil {
				return err
			}
			// MS_MOVE refuses mounts whose parent is shared
			if err := env.MakePrivate(env.TempDir); err != nil {
				return err
			}
			var err error
			if src, err = env.Mkdir("mnt_src", dirMode); err != nil {
				return err
			}
			des, err = env.Mkdir("mnt_des", dirMode)
			return err
		},
		Iterate: func(env *harness.Env) error {
			if err := env.MountDevice(src); err != nil {
				return err
			}

			out := harness.Invoke(func() error { return env.Move(src, des) })
			if out.Failed() {
				env.Report(result.Record{Outcome: result.Fail, Message: "mount(2) failed", Errno: out.Errno})
				return env.Unmount(src)
			}

			srcMounted, err := mountutils.IsMounted(src)
			if err != nil {
				return harness.Broken("check mnt_src", err)
			}
			desMounted, err := mountutils.IsMounted(des)
			if err != nil {
				return harness.Broken("check mnt_des", err)
			}
			if !srcMounted && desMounted {
				env.Reportf(result.Pass, "move mount is ok")
			} else {
				env.Reportf(result.Fail, "move mount does not work")
			}

			return env.Unmount(des)
		},
	}
}
