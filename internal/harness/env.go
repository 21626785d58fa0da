package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/log"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/syscall-probes/internal/cleanup"
	"github.com/spin-stack/syscall-probes/internal/config"
	"github.com/spin-stack/syscall-probes/internal/loop"
	"github.com/spin-stack/syscall-probes/internal/mountutils"
	"github.com/spin-stack/syscall-probes/internal/privilege"
	"github.com/spin-stack/syscall-probes/internal/result"
)

// tempDirMode lets the unprivileged user create entries in the run dir.
const tempDirMode = 0o777

// Env is the state of one probe run. It is created by the Runner and
// passed to the probe's Setup and Iterate functions.
type Env struct {
	Ctx     context.Context
	TCID    string
	TempDir string
	Config  config.Config

	// Device is set by AcquireDevice.
	Device   *loop.Device
	Mounts   *mountutils.Tracker
	Cleanup  *cleanup.Stack
	Reporter *result.Reporter

	// Iteration counts from zero.
	Iteration int

	provisioner *loop.Provisioner
	user        *privilege.Identity
}

// Path returns name inside the run's temp dir.
func (e *Env) Path(name string) string {
	return filepath.Join(e.TempDir, name)
}

// Mkdir creates name inside the run's temp dir and returns its path.
func (e *Env) Mkdir(name string, mode os.FileMode) (string, error) {
	p := e.Path(name)
	if err := os.Mkdir(p, mode); err != nil {
		return "", Broken("mkdir "+name, err)
	}
	return p, nil
}

// AcquireDevice binds the configured image to a free loop device and
// schedules its release.
func (e *Env) AcquireDevice() (*loop.Device, error) {
	d, err := e.provisioner.Acquire()
	if err != nil {
		return nil, Broken("acquire loop device", err)
	}
	e.Device = d
	log.G(e.Ctx).WithFields(log.Fields{
		"device":  d.Path,
		"backing": d.BackingFile,
	}).Debug("loop device bound")

	// the device cannot be released while anything is still mounted from it
	e.Cleanup.Push("release "+d.Path, func(ctx context.Context) error {
		if err := e.Mounts.UnmountAll(ctx); err != nil {
			return err
		}
		return e.provisioner.Release(ctx, d)
	})
	return d, nil
}

// MountDevice mounts the acquired device at target. The mount is tracked
// and undone before the device is released.
func (e *Env) MountDevice(target string) error {
	if e.Device == nil {
		return Broken("mount "+target, mountutils.ErrNoSource)
	}
	if err := e.Mounts.MountDevice(e.Device.Path, target, e.Config.FSType); err != nil {
		return Broken("mount "+target, err)
	}
	return nil
}

// MakePrivate bind-mounts dir onto itself with private propagation.
func (e *Env) MakePrivate(dir string) error {
	if err := e.Mounts.MakePrivate(dir); err != nil {
		return Broken("make "+dir+" private", err)
	}
	return nil
}

// Move relocates the mount at source to target. A failed move is returned
// as is so probes can judge it.
func (e *Env) Move(source, target string) error {
	return e.Mounts.Move(source, target)
}

// Unmount unmounts target now.
func (e *Env) Unmount(target string) error {
	if err := e.Mounts.Unmount(target); err != nil {
		return Broken("unmount "+target, err)
	}
	return nil
}

// User resolves the configured unprivileged account once per run.
func (e *Env) User() (privilege.Identity, error) {
	if e.user != nil {
		return *e.user, nil
	}
	id, err := privilege.Lookup(e.Config.User)
	if err != nil {
		return privilege.Identity{}, Broken("look up user "+e.Config.User, err)
	}
	e.user = &id
	return id, nil
}

// DropPrivileges switches the effective ids to the configured user until
// cleanup runs.
func (e *Env) DropPrivileges() error {
	id, err := e.User()
	if err != nil {
		return err
	}
	restore, err := privilege.Drop(id)
	if err != nil {
		return Broken(fmt.Sprintf("switch to user %s", id.Name), err)
	}
	e.Cleanup.Push("restore credentials", func(context.Context) error {
		return restore()
	})

	// probes create their files in the run dir after dropping
	if err := accessibleTempDir(e.TempDir); err != nil {
		return Brokenf("switch to user "+id.Name,
			"user %s cannot use %s, check the permissions of the tmpdir parents: %v", id.Name, e.TempDir, err)
	}
	return nil
}

// accessibleTempDir checks dir with the effective ids, so every parent must
// be searchable by the current effective user.
func accessibleTempDir(dir string) error {
	if dir == "" {
		return nil
	}
	return unix.Faccessat(unix.AT_FDCWD, dir, unix.W_OK|unix.X_OK, unix.AT_EACCESS)
}

// AsRoot runs fn with root privileges regained.
func (e *Env) AsRoot(fn func() error) error {
	return privilege.AsRoot(fn)
}

// Report sends rec under the run's TCID.
func (e *Env) Report(rec result.Record) {
	rec.TCID = e.TCID
	e.Reporter.Report(e.Ctx, rec)
}

// Reportf reports a message without an errno.
func (e *Env) Reportf(o result.Outcome, format string, args ...any) {
	e.Reporter.Reportf(e.Ctx, e.TCID, o, format, args...)
}
