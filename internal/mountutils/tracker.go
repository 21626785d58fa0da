package mountutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/containerd/log"
)

// MountPoint is a filesystem a run has mounted.
type MountPoint struct {
	Source string
	Target string
	FSType string
	Flags  uintptr
}

type ops struct {
	mountDevice func(source, target, fstype string) error
	remount     func(source, target, fstype string) error
	makePrivate func(dir string) error
	move        func(source, target string) error
	unmount     func(target string) error
}

var defaultOps = ops{
	mountDevice: MountDevice,
	remount:     RemountReadOnly,
	makePrivate: MakePrivate,
	move:        Move,
	unmount:     Unmount,
}

// Tracker performs mounts on behalf of a run and remembers which are still
// live, so teardown can undo them in reverse order without global flags.
type Tracker struct {
	mu     sync.Mutex
	mounts []MountPoint
	ops    ops
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ops: defaultOps}
}

// MountDevice mounts source read-write at target and tracks it.
// source must name a bound device.
func (t *Tracker) MountDevice(source, target, fstype string) error {
	if source == "" {
		return &MountError{Op: "mount", Target: target, Cause: ErrNoSource}
	}
	if err := t.ops.mountDevice(source, target, fstype); err != nil {
		return err
	}
	t.add(MountPoint{Source: source, Target: target, FSType: fstype})
	return nil
}

// RemountReadOnly switches a tracked mount to read-only.
func (t *Tracker) RemountReadOnly(target string) error {
	t.mu.Lock()
	i := t.index(target)
	if i < 0 {
		t.mu.Unlock()
		return &MountError{Op: "remount", Target: target, Cause: ErrNotTracked}
	}
	mp := t.mounts[i]
	t.mu.Unlock()

	if err := t.ops.remount(mp.Source, mp.Target, mp.FSType); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.index(target); i >= 0 {
		t.mounts[i].Flags |= remountReadOnlyFlags
	}
	return nil
}

// MakePrivate bind-mounts dir onto itself with private propagation and
// tracks the bind.
func (t *Tracker) MakePrivate(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return &MountError{Op: "bind", Source: dir, Target: dir, Cause: err}
	}
	if err := t.ops.makePrivate(dir); err != nil {
		return err
	}
	t.add(MountPoint{Source: dir, Target: dir, FSType: "bind", Flags: privateBindFlags})
	return nil
}

// Move relocates the tracked mount at source to target.
func (t *Tracker) Move(source, target string) error {
	if err := t.ops.move(source, target); err != nil {
		return err
	}
	t.moved(source, target)
	return nil
}

// Track records a mount made outside the tracker so UnmountAll undoes it.
func (t *Tracker) Track(mp MountPoint) {
	t.add(mp)
}

// moved retargets the tracked mount at source.
func (t *Tracker) moved(source, target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.index(source); i >= 0 {
		t.mounts[i].Target = target
		t.mounts[i].Flags |= moveFlags
		return
	}
	t.mounts = append(t.mounts, MountPoint{Source: source, Target: target, Flags: moveFlags})
}

// Unmount unmounts target and stops tracking it.
func (t *Tracker) Unmount(target string) error {
	if err := t.ops.unmount(target); err != nil {
		return err
	}
	t.Forget(target)
	return nil
}

// Forget stops tracking target without unmounting it.
func (t *Tracker) Forget(target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.index(target); i >= 0 {
		t.mounts = append(t.mounts[:i], t.mounts[i+1:]...)
	}
}

// IsMounted returns true if target is tracked as mounted.
func (t *Tracker) IsMounted(target string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index(target) >= 0
}

// Mounts returns a copy of the tracked mounts, oldest first.
func (t *Tracker) Mounts() []MountPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]MountPoint(nil), t.mounts...)
}

// UnmountAll unmounts every tracked mount, newest first. Mounts that fail
// to unmount stay tracked and their errors are joined.
func (t *Tracker) UnmountAll(ctx context.Context) error {
	var errs []error
	mounts := t.Mounts()
	for i := len(mounts) - 1; i >= 0; i-- {
		mp := mounts[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("unmount %s: %w", mp.Target, err))
			break
		}
		if err := t.Unmount(mp.Target); err != nil {
			errs = append(errs, err)
			continue
		}
		log.G(ctx).WithFields(log.Fields{
			"target": mp.Target,
			"source": mp.Source,
		}).Debug("unmounted")
	}
	return errors.Join(errs...)
}

func (t *Tracker) add(mp MountPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mounts = append(t.mounts, mp)
}

// index returns the newest entry for target. Callers hold mu.
func (t *Tracker) index(target string) int {
	for i := len(t.mounts) - 1; i >= 0; i-- {
		if t.mounts[i].Target == target {
			return i
		}
	}
	return -1
}
