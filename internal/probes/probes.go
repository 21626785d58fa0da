// Package probes lists every probe the binary can run.
package probes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spin-stack/syscall-probes/internal/harness"
)

// Lookup returns the probes named by tcids, in the given order. No names
// selects every probe.
func Lookup(tcids []string) ([]harness.Test, error) {
	all := All()
	if len(tcids) == 0 {
		return all, nil
	}

	byID := make(map[string]harness.Test, len(all))
	for _, t := range all {
		byID[t.TCID] = t
	}

	var selected []harness.Test
	var unknown []string
	for _, id := range tcids {
		t, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		selected = append(selected, t)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown probes: %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

// TCIDs returns the sorted names of every probe.
func TCIDs() []string {
	var ids []string
	for _, t := range All() {
		ids = append(ids, t.TCID)
	}
	sort.Strings(ids)
	return ids
}
