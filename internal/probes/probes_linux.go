package probes

import (
	"maps"

	"github.com/spin-stack/syscall-probes/internal/harness"
	"github.com/spin-stack/syscall-probes/internal/probes/fchown"
	"github.com/spin-stack/syscall-probes/internal/probes/mount"
	"github.com/spin-stack/syscall-probes/internal/probes/setrlimit"
)

// All returns a fresh set of every probe.
func All() []harness.Test {
	var tests []harness.Test
	tests = append(tests, fchown.Tests()...)
	tests = append(tests, mount.Tests()...)
	tests = append(tests, setrlimit.Tests()...)
	return tests
}

// Children returns every child body a probe may re-execute into.
func Children() map[string]harness.ChildFunc {
	children := make(map[string]harness.ChildFunc)
	maps.Copy(children, setrlimit.Children())
	return children
}
