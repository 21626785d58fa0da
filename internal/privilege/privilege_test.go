package privilege

import (
	"errors"
	"os"
	"testing"

	"github.com/containerd/containerd/v2/pkg/testutil"
	"github.com/containerd/errdefs"
)

func TestLookup(t *testing.T) {
	id, err := Lookup("root")
	if err != nil {
		t.Fatalf("Lookup(root): %v", err)
	}
	if id.UID != 0 || id.GID != 0 {
		t.Errorf("root resolved to %+v", id)
	}

	_, err = Lookup("no-such-user-for-probes")
	if !errdefs.IsNotFound(err) {
		t.Errorf("Lookup(unknown) = %v, want ErrNotFound", err)
	}
}

func TestDropAndRestore(t *testing.T) {
	testutil.RequiresRoot(t)

	nobody, err := Lookup(DefaultUser)
	if err != nil {
		t.Skipf("no %s account: %v", DefaultUser, err)
	}

	restore, err := Drop(nobody)
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if got := os.Geteuid(); got != nobody.UID {
		t.Errorf("euid after Drop = %d, want %d", got, nobody.UID)
	}
	if got := os.Getegid(); got != nobody.GID {
		t.Errorf("egid after Drop = %d, want %d", got, nobody.GID)
	}
	if got := os.Getuid(); got != 0 {
		t.Errorf("real uid changed to %d", got)
	}

	if err := AsRoot(func() error {
		if got := os.Geteuid(); got != 0 {
			t.Errorf("euid inside AsRoot = %d, want 0", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("AsRoot: %v", err)
	}
	if got := os.Geteuid(); got != nobody.UID {
		t.Errorf("euid after AsRoot = %d, want %d", got, nobody.UID)
	}
	if got := os.Getegid(); got != nobody.GID {
		t.Errorf("egid after AsRoot = %d, want %d", got, nobody.GID)
	}

	if err := restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := os.Geteuid(); got != 0 {
		t.Errorf("euid after restore = %d, want 0", got)
	}
	if got := os.Getegid(); got != 0 {
		t.Errorf("egid after restore = %d, want 0", got)
	}
}

func TestAsRootRepeatedFromDroppedState(t *testing.T) {
	testutil.RequiresRoot(t)

	nobody, err := Lookup(DefaultUser)
	if err != nil {
		t.Skipf("no %s account: %v", DefaultUser, err)
	}

	err = With(nobody, func() error {
		for i := 0; i < 3; i++ {
			if err := AsRoot(func() error { return nil }); err != nil {
				return err
			}
			if euid, egid := os.Geteuid(), os.Getegid(); euid != nobody.UID || egid != nobody.GID {
				t.Errorf("round %d: ids after AsRoot = %d/%d, want %d/%d", i, euid, egid, nobody.UID, nobody.GID)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AsRoot from dropped state: %v", err)
	}
	if euid, egid := os.Geteuid(), os.Getegid(); euid != 0 || egid != 0 {
		t.Errorf("ids after With = %d/%d, want 0/0", euid, egid)
	}
}

func TestWithRestoresOnError(t *testing.T) {
	testutil.RequiresRoot(t)

	nobody, err := Lookup(DefaultUser)
	if err != nil {
		t.Skipf("no %s account: %v", DefaultUser, err)
	}

	boom := errors.New("boom")
	err = With(nobody, func() error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("With() = %v, want %v", err, boom)
	}
	if got := os.Geteuid(); got != 0 {
		t.Errorf("euid after With = %d, want 0", got)
	}
}
