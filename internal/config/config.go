// Package config holds the settings shared by every probe run. Values come
// from built-in defaults, an optional YAML file and finally the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/spin-stack/syscall-probes/internal/loop"
	"github.com/spin-stack/syscall-probes/internal/privilege"
)

// Config is the run configuration.
type Config struct {
	// Image is the filesystem image bound to the loop device.
	Image string `koanf:"image"`
	// FSType is the filesystem type of Image.
	FSType string `koanf:"fs_type"`
	// User is the unprivileged account probes switch to.
	User        string `koanf:"user"`
	LoopControl string `koanf:"loop_control"`
	// TempRoot is where per-run temp dirs are created. Empty means os.TempDir.
	TempRoot string `koanf:"tmpdir"`
	// Iterations is how many times each probe loops. 0 loops until Duration
	// expires or the run is interrupted.
	Iterations int           `koanf:"iterations"`
	Duration   time.Duration `koanf:"duration"`
	Log        LogConfig     `koanf:"log"`
}

// LogConfig selects log verbosity, format and destination.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File enables a rotating log file instead of stderr.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Image:       loop.DefaultImagePath,
		FSType:      "ext4",
		User:        privilege.DefaultUser,
		LoopControl: loop.DefaultControlPath,
		Iterations:  1,
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults. Keys missing from data keep
// their default values.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Image == "" {
		errs = append(errs, errors.New("image must be set"))
	}
	if c.FSType == "" {
		errs = append(errs, errors.New("fs_type must be set"))
	}
	if c.User == "" {
		errs = append(errs, errors.New("user must be set"))
	}
	if c.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations must not be negative, got %d", c.Iterations))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must not be negative, got %s", c.Duration))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
