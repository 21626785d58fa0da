package harness

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/spin-stack/syscall-probes/internal/result"
)

var testChildren = map[string]ChildFunc{
	"report": func(ctx context.Context, enc *result.Encoder) error {
		return enc.Encode(result.Record{Outcome: result.Pass, Message: "from child", Errno: syscall.EFAULT})
	},
	"fail": func(ctx context.Context, enc *result.Encoder) error {
		return errors.New("child setup failed")
	},
	"kill": func(ctx context.Context, enc *result.Encoder) error {
		return syscall.Kill(os.Getpid(), syscall.SIGKILL)
	},
}

func TestMain(m *testing.M) {
	ChildMain(testChildren)
	os.Exit(m.Run())
}

func TestRunChild(t *testing.T) {
	tests := []struct {
		name   string
		status ChildStatus
		line   string
	}{
		{
			name:   "report",
			status: ChildStatus{Exited: true},
			line:   "child01        1  TPASS  :  from child: TEST_ERRNO=EFAULT(14): bad address",
		},
		{
			name:   "fail",
			status: ChildStatus{Exited: true, ExitCode: 1},
		},
		{
			name:   "kill",
			status: ChildStatus{Signaled: true, Signal: syscall.SIGKILL},
		},
		{
			name:   "missing",
			status: ChildStatus{Exited: true, ExitCode: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, out := newReportingEnv("child01")
			status, err := env.RunChild(tt.name)
			if err != nil {
				t.Fatalf("RunChild: %v", err)
			}
			if status != tt.status {
				t.Errorf("status = %+v, want %+v", status, tt.status)
			}
			if tt.line != "" && strings.TrimSpace(out.String()) != tt.line {
				t.Errorf("output = %q, want %q", out.String(), tt.line)
			}
			if tt.line == "" && out.Len() != 0 {
				t.Errorf("unexpected output %q", out.String())
			}
		})
	}
}

func TestChildStatus(t *testing.T) {
	tests := []struct {
		status  ChildStatus
		str     string
		success bool
	}{
		{ChildStatus{Exited: true}, "exited with 0", true},
		{ChildStatus{Exited: true, ExitCode: 3}, "exited with 3", false},
		{ChildStatus{Signaled: true, Signal: syscall.SIGSEGV}, "killed by segmentation fault", false},
		{ChildStatus{}, "unknown status", false},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if got := tt.status.Success(); got != tt.success {
			t.Errorf("%s: Success() = %v, want %v", tt.str, got, tt.success)
		}
	}
}
