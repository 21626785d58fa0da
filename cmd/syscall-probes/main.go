package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/log"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/spin-stack/syscall-probes/internal/config"
	"github.com/spin-stack/syscall-probes/internal/harness"
	"github.com/spin-stack/syscall-probes/internal/logutil"
	"github.com/spin-stack/syscall-probes/internal/probes"
	"github.com/spin-stack/syscall-probes/internal/result"
)

// Version information - set via ldflags at build time
// Example: go build -ldflags "-X main.version=1.0.0 -X main.gitCommit=$(git rev-parse HEAD)"
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const envPrefix = "SYSCALL_PROBES_"

func main() {
	// re-executed children never reach the CLI
	harness.ChildMain(probes.Children())

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "syscall-probes",
		Usage:   "Kernel syscall conformance probes",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{envPrefix + "CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{envPrefix + "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				EnvVars: []string{envPrefix + "LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Write logs to a rotating file instead of stderr",
				EnvVars: []string{envPrefix + "LOG_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List available probes",
				Action: list,
			},
			{
				Name:      "run",
				Usage:     "Run probes (all when none are named)",
				ArgsUsage: "[TCID...]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "iterations",
						Aliases: []string{"i"},
						Usage:   "Loop each probe N times (0 loops until interrupted)",
						EnvVars: []string{envPrefix + "ITERATIONS"},
					},
					&cli.DurationFlag{
						Name:    "duration",
						Aliases: []string{"I"},
						Usage:   "Loop each probe for this long",
						EnvVars: []string{envPrefix + "DURATION"},
					},
					&cli.StringFlag{
						Name:    "image",
						Usage:   "Filesystem image bound to the loop device",
						EnvVars: []string{envPrefix + "IMAGE"},
					},
					&cli.StringFlag{
						Name:    "fs-type",
						Usage:   "Filesystem type of the image",
						EnvVars: []string{envPrefix + "FS_TYPE"},
					},
					&cli.StringFlag{
						Name:    "user",
						Usage:   "Unprivileged user probes switch to",
						EnvVars: []string{envPrefix + "USER"},
					},
					&cli.StringFlag{
						Name:    "loop-control",
						Usage:   "Loop control device",
						EnvVars: []string{envPrefix + "LOOP_CONTROL"},
					},
					&cli.StringFlag{
						Name:    "tmpdir",
						Usage:   "Directory for per-run temp dirs",
						EnvVars: []string{envPrefix + "TMPDIR"},
					},
				},
				Action: run,
			},
		},
	}
}

func list(cliCtx *cli.Context) error {
	for _, t := range probes.All() {
		fmt.Fprintf(cliCtx.App.Writer, "%-12s %s\n", t.TCID, t.Summary)
	}
	return nil
}

// loadConfig layers flags and env vars over the config file over defaults.
func loadConfig(cliCtx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	stringFlags := map[string]*string{
		"log-level":    &cfg.Log.Level,
		"log-format":   &cfg.Log.Format,
		"log-file":     &cfg.Log.File,
		"image":        &cfg.Image,
		"fs-type":      &cfg.FSType,
		"user":         &cfg.User,
		"loop-control": &cfg.LoopControl,
		"tmpdir":       &cfg.TempRoot,
	}
	for name, dst := range stringFlags {
		if cliCtx.IsSet(name) {
			*dst = cliCtx.String(name)
		}
	}

	if cliCtx.IsSet("duration") {
		cfg.Duration = cliCtx.Duration("duration")
		// -I alone loops for the whole duration
		if !cliCtx.IsSet("iterations") {
			cfg.Iterations = 0
		}
	}
	if cliCtx.IsSet("iterations") {
		cfg.Iterations = cliCtx.Int("iterations")
	}
	return cfg, cfg.Validate()
}

func run(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}

	closer, err := logutil.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	tests, err := probes.Lookup(cliCtx.Args().Slice())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("run", uuid.NewString()))

	// Stop looping on SIGINT/SIGTERM; cleanup still runs.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.G(ctx).WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.G(ctx).WithFields(log.Fields{
		"probes":     len(tests),
		"iterations": cfg.Iterations,
		"duration":   cfg.Duration,
		"image":      cfg.Image,
	}).Debug("starting run")

	reporter := result.NewReporter(cliCtx.App.Writer)
	runner := harness.NewRunner(cfg, reporter)
	if err := runner.RunAll(ctx, tests); err != nil {
		log.G(ctx).WithError(err).Debug("run finished with errors")
	}

	if code := reporter.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}
