// Package testutil has helpers shared by probe tests that need a real loop
// device and filesystem image.
package testutil

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	ctrtestutil "github.com/containerd/containerd/v2/pkg/testutil"

	"github.com/spin-stack/syscall-probes/internal/config"
	"github.com/spin-stack/syscall-probes/internal/harness"
	"github.com/spin-stack/syscall-probes/internal/loop"
	"github.com/spin-stack/syscall-probes/internal/result"
	"github.com/spin-stack/syscall-probes/internal/stringutil"
)

// ImageSize is large enough for mkfs.ext4 with default options.
const ImageSize = 32 << 20

const tempRootMode = 0o755

// RequiresTools skips the test unless every tool is in PATH.
func RequiresTools(t testing.TB, tools ...string) {
	t.Helper()
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found in PATH", tool)
		}
	}
}

// RequiresLoopDevice skips the test unless it runs as root on a host with
// loop device support and mkfs.ext4.
func RequiresLoopDevice(t testing.TB) {
	t.Helper()
	ctrtestutil.RequiresRoot(t)
	if _, err := os.Stat(loop.DefaultControlPath); err != nil {
		t.Skipf("loop devices unavailable: %v", err)
	}
	RequiresTools(t, "mkfs.ext4")
}

// NewExt4Image creates an ext4 filesystem image in a temp dir.
func NewExt4Image(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tstfs_ext4.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := f.Truncate(ImageSize); err != nil {
		f.Close()
		t.Fatalf("truncate image: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := exec.Command("mkfs.ext4", "-q", "-F", path).CombinedOutput()
	if err != nil {
		t.Fatalf("mkfs.ext4 failed: %v: %s", err, stringutil.TruncateOutput(out, 1024))
	}
	return path
}

// NewRunner returns a runner that reports into the returned buffer and
// binds image for probes that need a device.
func NewRunner(t testing.TB, image string, iterations int) (*harness.Runner, *bytes.Buffer) {
	t.Helper()

	cfg := config.Default()
	cfg.Image = image
	cfg.TempRoot = t.TempDir()
	cfg.Iterations = iterations
	// probes that drop privileges must still reach their run dir; t.TempDir
	// nests it in a 0700 parent
	for _, dir := range []string{filepath.Dir(cfg.TempRoot), cfg.TempRoot} {
		if err := os.Chmod(dir, tempRootMode); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	return harness.NewRunner(cfg, result.NewReporter(&out)), &out
}
