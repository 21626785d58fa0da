// Package result reports probe outcomes as one line per case per iteration
// and folds them into a process exit code.
package result

import (
	"fmt"
	"strings"
)

// Outcome classifies one reported result.
type Outcome int

const (
	Pass Outcome = iota
	Fail
	Broken
	Warn
	Info
	Conf
)

var outcomeNames = map[Outcome]string{
	Pass:   "TPASS",
	Fail:   "TFAIL",
	Broken: "TBROK",
	Warn:   "TWARN",
	Info:   "TINFO",
	Conf:   "TCONF",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// ExitBit is the bit this outcome contributes to the exit code. Pass and
// Info contribute nothing.
func (o Outcome) ExitBit() int {
	switch o {
	case Fail:
		return 1
	case Broken:
		return 2
	case Warn:
		return 4
	case Conf:
		return 32
	default:
		return 0
	}
}

// ParseOutcome accepts "TPASS" or "pass" forms.
func ParseOutcome(s string) (Outcome, error) {
	want := strings.ToUpper(s)
	if !strings.HasPrefix(want, "T") {
		want = "T" + want
	}
	for o, name := range outcomeNames {
		if name == want {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) {
	if _, ok := outcomeNames[o]; !ok {
		return nil, fmt.Errorf("unknown outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
