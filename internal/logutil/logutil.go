// Package logutil configures the process-wide containerd logger.
package logutil

import (
	"fmt"
	"io"

	"github.com/containerd/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/spin-stack/syscall-probes/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup applies cfg to the global logger. The returned closer flushes and
// closes the log file, if one was configured.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	if cfg.Level != "" {
		if err := log.SetLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	switch cfg.Format {
	case "", "text":
		if err := log.SetFormat(log.TextFormat); err != nil {
			return nil, err
		}
	case "json":
		if err := log.SetFormat(log.JSONFormat); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File == "" {
		return nopCloser{}, nil
	}
	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	log.L.Logger.SetOutput(out)
	return out, nil
}
