package setrlimit

import (
	"context"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/spin-stack/syscall-probes/internal/harness"
	"github.com/spin-stack/syscall-probes/internal/result"
)

// TCID identifies the bad-address probe.
const TCID = "setrlimit05"

const childName = TCID + "/bad-address"

// Tests returns the setrlimit probes.
func Tests() []harness.Test {
	return []harness.Test{{
		TCID:    TCID,
		Summary: "setrlimit with an inaccessible address fails with EFAULT or faults",
		Iterate: verify(childName),
	}}
}

// Children returns the child bodies the probes re-execute into.
func Children() map[string]harness.ChildFunc {
	return map[string]harness.ChildFunc{childName: badAddressChild}
}

// verify runs the named child. The child reports its own result; a child
// killed by SIGSEGV passes and any other abnormal end is Broken.
func verify(name string) func(env *harness.Env) error {
	return func(env *harness.Env) error {
		status, err := env.RunChild(name)
		if err != nil {
			return err
		}
		switch {
		case status.Signaled && status.Signal == unix.SIGSEGV:
			env.Reportf(result.Pass, "setrlimit() caused SIGSEGV")
			return nil
		case status.Success():
			return nil
		default:
			return harness.Brokenf("child", "child %s", status)
		}
	}
}

// badAddressChild runs in a separate process so a fault cannot take the
// harness down with it.
func badAddressChild(ctx context.Context, enc *result.Encoder) error {
	page, err := unix.Mmap(-1, 0, os.Getpagesize(), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("map inaccessible page: %w", err)
	}
	defer unix.Munmap(page)
	addr := uintptr(unsafe.Pointer(&page[0]))

	_, _, errno := unix.RawSyscall(unix.SYS_SETRLIMIT, unix.RLIMIT_NOFILE, addr, 0)
	return enc.Encode(record(errno))
}

func record(errno unix.Errno) result.Record {
	rec := result.Record{TCID: TCID, Errno: errno}
	switch errno {
	case 0:
		rec.Outcome = result.Fail
		rec.Message = "setrlimit() succeeded unexpectedly"
	case unix.EFAULT:
		rec.Outcome = result.Pass
		rec.Message = "setrlimit() failed as expected"
	default:
		rec.Outcome = result.Fail
		rec.Message = "setrlimit() should fail with EFAULT, got"
	}
	return rec
}
