package probes

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTCIDs(t *testing.T) {
	want := []string{"fchown04", "mount01", "mount04", "mount06", "setrlimit05"}
	if diff := cmp.Diff(want, TCIDs()); diff != "" {
		t.Errorf("TCIDs (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		tcids   []string
		want    []string
		wantErr bool
	}{
		{name: "all", tcids: nil, want: []string{"fchown04", "mount01", "mount04", "mount06", "setrlimit05"}},
		{name: "ordered subset", tcids: []string{"setrlimit05", "mount06"}, want: []string{"setrlimit05", "mount06"}},
		{name: "unknown", tcids: []string{"mount06", "chmod01"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lookup(tt.tcids)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, tc := range got {
				ids = append(ids, tc.TCID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("Lookup(%v) (-want +got):\n%s", tt.tcids, diff)
			}
		})
	}
}

func TestChildren(t *testing.T) {
	if len(Children()) == 0 {
		t.Error("expected at least one child body")
	}
	for name, fn := range Children() {
		if fn == nil {
			t.Errorf("child %q is nil", name)
		}
	}
}
