package logutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/log"

	"github.com/spin-stack/syscall-probes/internal/config"
)

func TestSetupRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
	}{
		{name: "level", cfg: config.LogConfig{Level: "loud"}},
		{name: "format", cfg: config.LogConfig{Level: "info", Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Setup(tt.cfg); err == nil {
				t.Errorf("Setup(%+v) should fail", tt.cfg)
			}
		})
	}
}

func TestSetupFile(t *testing.T) {
	prev := log.L.Logger.Out
	t.Cleanup(func() {
		log.L.Logger.SetOutput(prev)
		_ = log.SetFormat(log.TextFormat)
		_ = log.SetLevel("info")
	})

	path := filepath.Join(t.TempDir(), "probes.log")
	closer, err := Setup(config.LogConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	log.G(context.Background()).WithField("tcid", "mount06").Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"tcid":"mount06"`) {
		t.Errorf("expected JSON field in log file, got %s", data)
	}
}
