// Package harness runs syscall probes. It gives every run its own temp dir,
// loop device, mount tracker and cleanup stack, loops the probe body, and
// turns setup failures into Broken results that abort the run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/containerd/log"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/syscall-probes/internal/cleanup"
	"github.com/spin-stack/syscall-probes/internal/config"
	"github.com/spin-stack/syscall-probes/internal/loop"
	"github.com/spin-stack/syscall-probes/internal/mountutils"
	"github.com/spin-stack/syscall-probes/internal/preflight"
	"github.com/spin-stack/syscall-probes/internal/result"
)

// Test describes one probe program.
type Test struct {
	TCID    string
	Summary string

	// NeedsRoot makes the run report TCONF unless started as root.
	NeedsRoot bool
	// NeedsDevice checks the image, loop control and filesystem up front.
	NeedsDevice bool

	// Setup runs once before the first iteration.
	Setup func(env *Env) error
	// Iterate runs one iteration. Returning an error aborts the run as Broken.
	Iterate func(env *Env) error
}

// Runner executes tests against one configuration and reporter.
type Runner struct {
	Config   config.Config
	Reporter *result.Reporter

	now func() time.Time
}

// NewRunner creates a runner.
func NewRunner(cfg config.Config, rep *result.Reporter) *Runner {
	return &Runner{Config: cfg, Reporter: rep, now: time.Now}
}

// RunAll runs tests in order. A Broken run does not stop the next test;
// cancelling ctx does.
func (r *Runner) RunAll(ctx context.Context, tests []Test) error {
	var errs []error
	for _, t := range tests {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Run(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.TCID, err))
		}
	}
	return errors.Join(errs...)
}

// Run executes t: preflight, Setup, the iteration loop and cleanup. It
// returns the error that aborted the run, if any. Results are reported
// through the runner's reporter either way.
func (r *Runner) Run(ctx context.Context, t Test) (retErr error) {
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("tcid", t.TCID))
	env := &Env{
		Ctx:      ctx,
		TCID:     t.TCID,
		Config:   r.Config,
		Mounts:   mountutils.NewTracker(),
		Reporter: r.Reporter,
		provisioner: &loop.Provisioner{
			ControlPath: r.Config.LoopControl,
			ImagePath:   r.Config.Image,
		},
	}
	env.Cleanup = &cleanup.Stack{
		OnError: func(ctx context.Context, name string, err error) {
			r.Reporter.Reportf(ctx, t.TCID, result.Warn, "cleanup: %s failed: %v", name, err)
		},
	}

	// cleanup runs after the abort is reported
	defer env.Cleanup.Run(ctx)
	defer func() {
		if retErr != nil {
			r.reportAbort(ctx, t.TCID, retErr)
		}
	}()

	if err := classify("preflight", preflight.Check(r.requirements(t))); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(r.Config.TempRoot, t.TCID+"-")
	if err != nil {
		return Broken("create temp dir", err)
	}
	if err := os.Chmod(tmp, tempDirMode); err != nil {
		_ = os.RemoveAll(tmp)
		return Broken("chmod temp dir", err)
	}
	env.TempDir = tmp
	env.Cleanup.Push("remove "+tmp, func(context.Context) error {
		if n := len(env.Mounts.Mounts()); n > 0 {
			return fmt.Errorf("%d mounts remain, leaving %s in place", n, tmp)
		}
		return os.RemoveAll(tmp)
	})
	env.Cleanup.Push("unmount remaining", env.Mounts.UnmountAll)

	if t.Setup != nil {
		if err := t.Setup(env); err != nil {
			return err
		}
	}

	start := r.now()
	for i := 0; r.more(i, start); i++ {
		if ctx.Err() != nil {
			log.G(ctx).WithField("iteration", i).Info("interrupted")
			break
		}
		env.Iteration = i
		r.Reporter.ResetCount(t.TCID)
		if err := t.Iterate(env); err != nil {
			return err
		}
	}
	return nil
}

// more reports whether iteration i should run. Iterations and Duration both
// bound the loop when set; with neither set it runs until cancelled.
func (r *Runner) more(i int, start time.Time) bool {
	if r.Config.Iterations > 0 && i >= r.Config.Iterations {
		return false
	}
	if r.Config.Duration > 0 && r.now().Sub(start) >= r.Config.Duration {
		return false
	}
	return true
}

func (r *Runner) requirements(t Test) preflight.Requirements {
	req := preflight.Requirements{Root: t.NeedsRoot}
	if t.NeedsDevice {
		req.FSType = r.Config.FSType
		req.LoopControl = r.Config.LoopControl
		req.Image = r.Config.Image
	}
	return req
}

func (r *Runner) reportAbort(ctx context.Context, tcid string, err error) {
	rec := result.Record{TCID: tcid, Outcome: result.Broken, Message: err.Error()}
	if IsConf(err) {
		rec.Outcome = result.Conf
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		rec.Errno = errno
	}
	r.Reporter.Report(ctx, rec)
}
