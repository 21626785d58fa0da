package result

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/containerd/log"
	"golang.org/x/sys/unix"
)

// Reporter writes result lines and accumulates the exit code. It is safe
// for concurrent use, though probes report from one goroutine.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	counts map[string]int
	totals map[Outcome]int
	exit   int
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		out:    out,
		counts: make(map[string]int),
		totals: make(map[Outcome]int),
	}
}

// Report writes rec as
//
//	<tcid> <n> <TYPE> : <message>[: TEST_ERRNO=<NAME>(<n>): <strerror>]
//
// where n counts the results reported for that tcid since its last
// ResetCount.
func (r *Reporter) Report(ctx context.Context, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[rec.TCID]++
	r.totals[rec.Outcome]++
	r.exit |= rec.Outcome.ExitBit()

	line := FormatLine(rec, r.counts[rec.TCID])
	if _, err := io.WriteString(r.out, line+"\n"); err != nil {
		log.G(ctx).WithError(err).Warn("failed to write result line")
	}

	entry := log.G(ctx).WithFields(log.Fields{
		"tcid":    rec.TCID,
		"outcome": rec.Outcome.String(),
	})
	if rec.Errno != 0 {
		entry = entry.WithField("errno", unix.ErrnoName(rec.Errno))
	}
	switch rec.Outcome {
	case Fail, Broken:
		entry.Error(rec.Message)
	case Warn, Conf:
		entry.Warn(rec.Message)
	default:
		entry.Debug(rec.Message)
	}
}

// ResetCount restarts the numbering of tcid's results. The runner calls it
// at the start of every iteration.
func (r *Reporter) ResetCount(tcid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, tcid)
}

// Reportf is shorthand for a record without an errno.
func (r *Reporter) Reportf(ctx context.Context, tcid string, o Outcome, format string, args ...any) {
	r.Report(ctx, Record{TCID: tcid, Outcome: o, Message: fmt.Sprintf(format, args...)})
}

// ExitCode is the OR of the exit bits of every outcome reported so far.
func (r *Reporter) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exit
}

// Total returns how many results of outcome o were reported.
func (r *Reporter) Total(o Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[o]
}

// FormatLine renders rec as the n-th result of its tcid.
func FormatLine(rec Record, n int) string {
	line := fmt.Sprintf("%-12s %3d  %s  :  %s", rec.TCID, n, rec.Outcome, rec.Message)
	if rec.Errno != 0 {
		line += fmt.Sprintf(": TEST_ERRNO=%s(%d): %s", errnoName(rec.Errno), uintptr(rec.Errno), rec.Errno.Error())
	}
	return line
}

func errnoName(e unix.Errno) string {
	if name := unix.ErrnoName(e); name != "" {
		return name
	}
	return "???"
}
