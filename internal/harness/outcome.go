package harness

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/spin-stack/syscall-probes/internal/result"
)

// Outcome is the captured result of one syscall invocation.
type Outcome struct {
	Err   error
	Errno unix.Errno
}

// Failed reports whether the call returned an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Invoke runs call and captures its error and errno. Errors that carry no
// errno leave Errno zero.
func Invoke(call func() error) Outcome {
	err := call()
	out := Outcome{Err: err}
	if err != nil {
		errors.As(err, &out.Errno)
	}
	return out
}

// Case is one entry of a probe's fixed table.
type Case struct {
	Name     string
	Expected unix.Errno
}

// ExpectErrno reports Pass when out failed with exactly want, and Fail when
// the call succeeded or failed with any other errno.
func (e *Env) ExpectErrno(call string, out Outcome, want unix.Errno) result.Outcome {
	switch {
	case !out.Failed():
		e.Report(result.Record{
			Outcome: result.Fail,
			Message: fmt.Sprintf("%s succeeded unexpectedly", call),
		})
		return result.Fail
	case out.Errno == want:
		e.Report(result.Record{
			Outcome: result.Pass,
			Message: fmt.Sprintf("%s failed as expected", call),
			Errno:   out.Errno,
		})
		return result.Pass
	default:
		msg := fmt.Sprintf("%s failed unexpectedly; expected: %d - %s", call, uintptr(want), want.Error())
		if out.Errno == 0 {
			msg += fmt.Sprintf(" (got %v)", out.Err)
		}
		e.Report(result.Record{Outcome: result.Fail, Message: msg, Errno: out.Errno})
		return result.Fail
	}
}
