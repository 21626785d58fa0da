package result

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
)

func TestOutcomeExitBits(t *testing.T) {
	tests := []struct {
		outcomes []Outcome
		expected int
	}{
		{outcomes: nil, expected: 0},
		{outcomes: []Outcome{Pass, Pass, Info}, expected: 0},
		{outcomes: []Outcome{Pass, Fail}, expected: 1},
		{outcomes: []Outcome{Broken}, expected: 2},
		{outcomes: []Outcome{Fail, Broken, Warn}, expected: 7},
		{outcomes: []Outcome{Conf, Info}, expected: 32},
		{outcomes: []Outcome{Fail, Fail, Conf}, expected: 33},
	}

	for _, tt := range tests {
		r := NewReporter(&bytes.Buffer{})
		for _, o := range tt.outcomes {
			r.Reportf(context.Background(), "probe01", o, "result")
		}
		if got := r.ExitCode(); got != tt.expected {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.outcomes, got, tt.expected)
		}
	}
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		input    string
		expected Outcome
		wantErr  bool
	}{
		{input: "TPASS", expected: Pass},
		{input: "fail", expected: Fail},
		{input: "TBROK", expected: Broken},
		{input: "conf", expected: Conf},
		{input: "TINFO", expected: Info},
		{input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOutcome(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOutcome(%q): %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseOutcome(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatLine(t *testing.T) {
	tests := []struct {
		name     string
		rec      Record
		n        int
		expected string
	}{
		{
			name:     "errno",
			rec:      Record{TCID: "fchown04", Outcome: Pass, Message: "fchown failed as expected", Errno: unix.EPERM},
			n:        1,
			expected: "fchown04       1  TPASS  :  fchown failed as expected: TEST_ERRNO=EPERM(1): operation not permitted",
		},
		{
			name:     "no errno",
			rec:      Record{TCID: "mount06", Outcome: Fail, Message: "mnt_src still mounted"},
			n:        12,
			expected: "mount06       12  TFAIL  :  mnt_src still mounted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLine(tt.rec, tt.n); got != tt.expected {
				t.Errorf("FormatLine() =\n%q\nwant\n%q", got, tt.expected)
			}
		})
	}
}

func TestReporterCountsPerTCID(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(&out)
	ctx := context.Background()

	r.Reportf(ctx, "fchown04", Pass, "a")
	r.Reportf(ctx, "fchown04", Pass, "b")
	r.Reportf(ctx, "mount04", Pass, "c")
	r.Reportf(ctx, "fchown04", Fail, "d")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), out.String())
	}
	for i, want := range []string{"fchown04       1", "fchown04       2", "mount04        1", "fchown04       3"} {
		if !strings.HasPrefix(lines[i], want) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], want)
		}
	}
	if got := r.Total(Pass); got != 3 {
		t.Errorf("Total(Pass) = %d, want 3", got)
	}
	if got := r.Total(Fail); got != 1 {
		t.Errorf("Total(Fail) = %d, want 1", got)
	}
}

func TestReporterResetCount(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(&out)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r.ResetCount("fchown04")
		for _, msg := range []string{"eperm", "ebadf", "erofs"} {
			r.Reportf(ctx, "fchown04", Pass, msg)
		}
		r.Reportf(ctx, "mount06", Pass, "move")
	}

	var got []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		got = append(got, strings.Join(strings.Fields(line)[:2], " "))
	}
	want := []string{
		"fchown04 1", "fchown04 2", "fchown04 3", "mount06 1",
		"fchown04 1", "fchown04 2", "fchown04 3", "mount06 2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("numbering (-want +got):\n%s", diff)
	}
	if got := r.Total(Pass); got != 8 {
		t.Errorf("Total(Pass) = %d, want 8", got)
	}
}

func TestRecordStream(t *testing.T) {
	sent := []Record{
		{TCID: "setrlimit05", Outcome: Pass, Message: "setrlimit failed as expected", Errno: unix.EFAULT},
		{TCID: "setrlimit05", Outcome: Info, Message: "child exiting"},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, rec := range sent {
		if err := enc.Encode(rec); err != nil {
			t.Fatal(err)
		}
	}

	var got []Record
	if err := Decode(&buf, func(rec Record) error {
		got = append(got, rec)
		return nil
	}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(sent, got); diff != "" {
		t.Errorf("records differ (-sent +got):\n%s", diff)
	}
}

func TestDecodeMalformed(t *testing.T) {
	input := `{"tcid":"x","outcome":"TPASS","message":"ok"}` + "\n" + `{"tcid":"x","outcome":"TNOPE"}` + "\n"

	var n int
	err := Decode(strings.NewReader(input), func(Record) error {
		n++
		return nil
	})
	if err == nil {
		t.Fatal("expected decode error for unknown outcome")
	}
	if n != 1 {
		t.Errorf("expected 1 record before the error, got %d", n)
	}
}

func TestDecodeStopsOnCallbackError(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		if err := enc.Encode(Record{TCID: "x", Outcome: Pass}); err != nil {
			t.Fatal(err)
		}
	}

	stop := errors.New("stop")
	var n int
	err := Decode(&buf, func(Record) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
	if n != 1 {
		t.Errorf("callback called %d times, want 1", n)
	}
}
