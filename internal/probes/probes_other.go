//go:build !linux

package probes

import "github.com/spin-stack/syscall-probes/internal/harness"

// All returns no probes outside Linux.
func All() []harness.Test {
	return nil
}

// Children returns no child bodies outside Linux.
func Children() map[string]harness.ChildFunc {
	return nil
}
