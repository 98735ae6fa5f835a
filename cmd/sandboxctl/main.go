//go:build linux

// Command sandboxctl is a demo driver for the sandbox core: it starts a
// zygote and sends it one task that runs a single command in a worker. It
// returns once the task has been sent; it does not wait for the worker and
// does not report the command's exit status.
//
// Grounded on HQarroum-microbox's main.go/options package (the overall
// "parse CLI, build a logger, run one sandbox, exit with its code" shape)
// — reduced to the narrower command set this module's SandboxTask
// contract calls for, since options.go's fs/cgroup/capability/seccomp
// flags belong to features this module doesn't implement (see DESIGN.md).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/goombaio/namegenerator"
	"github.com/porkg-dev/sandboxcore/logger"
	"github.com/porkg-dev/sandboxcore/proc"
	"github.com/porkg-dev/sandboxcore/sandbox"
	"github.com/porkg-dev/sandboxcore/version"
	"github.com/urfave/cli/v3"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseLogFormat(s string) logger.LogFormat {
	if strings.ToLower(s) == "json" {
		return logger.LogJSON
	}
	return logger.LogText
}

// parseEnv splits "KEY=VALUE" strings into sandbox.EnvVars, dropping any
// entry without an "=" rather than failing the whole sandbox launch on it.
func parseEnv(raw []string) sandbox.EnvVars {
	vars := make(sandbox.EnvVars, 0, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars = append(vars, sandbox.EnvVar{Key: k, Val: v})
	}
	return vars
}

func main() {
	os.Exit(run(context.Background(), os.Args))
}

func run(ctx context.Context, args []string) int {
	var logLevel, logFormat string
	var hostname string
	var envSlice []string
	var network bool
	var uid, gid int64

	generator := namegenerator.NewNameGenerator(uuid.New().ID())

	cmd := &cli.Command{
		Name:    "sandboxctl",
		Usage:   "Run a single command inside a freshly namespaced sandbox worker.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "info",
				Destination: &logLevel,
				Usage:       "Log verbosity (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:        "log-format",
				Value:       "text",
				Destination: &logFormat,
				Usage:       "Log format (text|json)",
			},
			&cli.StringFlag{
				Name:        "hostname",
				Value:       generator.Generate(),
				Destination: &hostname,
				Usage:       "Hostname to set inside the sandbox",
			},
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "Sets an environment variable as KEY=VALUE in the sandbox",
			},
			&cli.BoolFlag{
				Name:        "network",
				Destination: &network,
				Usage:       "Clone the worker into a new network namespace (loopback only)",
			},
			&cli.IntFlag{
				Name:        "uid",
				Value:       0,
				Destination: &uid,
				Usage:       "UID the task runs as inside the sandbox",
			},
			&cli.IntFlag{
				Name:        "gid",
				Value:       0,
				Destination: &gid,
				Usage:       "GID the task runs as inside the sandbox",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			envSlice = c.StringSlice("env")
			argv := c.Args().Slice()
			if len(argv) == 0 {
				return fmt.Errorf("missing command; usage: sandboxctl [options] -- command [args...]")
			}

			logger.CreateLogger(&logger.LoggerOpts{
				LogLevel:  parseLogLevel(logLevel),
				LogFormat: parseLogFormat(logFormat),
			})

			ctrl, err := sandbox.Start(func() sandbox.Task { return &execTask{} })
			if err != nil {
				return fmt.Errorf("start sandbox zygote: %w", err)
			}
			defer ctrl.Close()

			task := &execTask{
				Hostname: hostname,
				Argv:     argv,
				Env:      parseEnv(append(os.Environ(), envSlice...)),
				UID:      uint32(uid),
				GID:      uint32(gid),
				Network:  network,
			}

			if err := ctrl.SpawnAsync(task, nil); err != nil {
				return fmt.Errorf("spawn sandbox worker: %w", err)
			}
			return nil
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		slog.Default().Error("sandboxctl failed", slog.Any("err", err))
		_ = cli.ShowAppHelp(cmd)
		return proc.ReportResult(err)
	}
	return 0
}
