package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/containerd/log"

	"github.com/spin-stack/syscall-probes/internal/result"
	"github.com/spin-stack/syscall-probes/internal/stringutil"
)

// ChildEnv selects the child function a re-executed process runs.
const ChildEnv = "SYSCALL_PROBES_CHILD"

// maxChildStderr bounds the child stderr kept in logs.
const maxChildStderr = 4096

// ChildFunc is the body of a child process. Records written to enc are
// forwarded to the parent's reporter.
type ChildFunc func(ctx context.Context, enc *result.Encoder) error

// ChildMain runs the child selected by ChildEnv and exits. It returns
// immediately in a process that was not started by RunChild, so it must be
// called first thing in main and TestMain.
func ChildMain(children map[string]ChildFunc) {
	name := os.Getenv(ChildEnv)
	if name == "" {
		return
	}
	os.Exit(runChild(context.Background(), name, children))
}

func runChild(ctx context.Context, name string, children map[string]ChildFunc) int {
	fn, ok := children[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown child %q\n", name)
		return 2
	}
	if err := fn(ctx, result.NewEncoder(os.Stdout)); err != nil {
		log.G(ctx).WithError(err).WithField("child", name).Error("child failed")
		return 1
	}
	return 0
}

// ChildStatus is how a child process ended.
type ChildStatus struct {
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
}

func (s ChildStatus) String() string {
	switch {
	case s.Signaled:
		return "killed by " + s.Signal.String()
	case s.Exited:
		return fmt.Sprintf("exited with %d", s.ExitCode)
	default:
		return "unknown status"
	}
}

// Success reports a zero exit.
func (s ChildStatus) Success() bool {
	return s.Exited && s.ExitCode == 0
}

// RunChild re-executes the current binary as the named child, waits for it,
// and forwards the records it wrote to the reporter. An error means the
// child could not be started or its output could not be read.
func (e *Env) RunChild(name string) (ChildStatus, error) {
	exe, err := os.Executable()
	if err != nil {
		return ChildStatus{}, Broken("locate executable", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(e.Ctx, exe)
	cmd.Env = append(os.Environ(), ChildEnv+"="+name)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return ChildStatus{}, Broken("fork child "+name, runErr)
	}

	status := waitStatus(cmd.ProcessState)
	entry := log.G(e.Ctx).WithFields(log.Fields{
		"child":  name,
		"pid":    cmd.ProcessState.Pid(),
		"status": status.String(),
	})
	if stderr.Len() > 0 {
		entry = entry.WithField("stderr", stringutil.TruncateOutput(stderr.Bytes(), maxChildStderr))
	}
	if status.Success() {
		entry.Debug("child finished")
	} else {
		entry.Info("child finished abnormally")
	}

	if err := result.Decode(&stdout, func(rec result.Record) error {
		if rec.TCID == "" {
			rec.TCID = e.TCID
		}
		e.Reporter.Report(e.Ctx, rec)
		return nil
	}); err != nil {
		return status, Broken("read child "+name+" results", err)
	}
	return status, nil
}

func waitStatus(ps *os.ProcessState) ChildStatus {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		return ChildStatus{Exited: ps.Exited(), ExitCode: ps.ExitCode()}
	}
	switch {
	case ws.Signaled():
		return ChildStatus{Signaled: true, Signal: ws.Signal()}
	case ws.Exited():
		return ChildStatus{Exited: true, ExitCode: ws.ExitStatus()}
	default:
		return ChildStatus{}
	}
}
