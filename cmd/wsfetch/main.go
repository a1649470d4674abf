package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spachava753/wsfetch/internal/config"
	"github.com/spachava753/wsfetch/internal/executor"
	"github.com/spachava753/wsfetch/internal/joblist"
)

type flags struct {
	jobs     string
	config   string
	envFile  string
	summary  string
	logLevel string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "wsfetch",
		Short: "Download Jenkins job workspaces and unpack them locally",
		Long: `wsfetch reads a list of Jenkins job names and, for each job, downloads the
workspace archive, .gitignore and .git archive from the job's workspace page,
then unpacks them into a local directory named after the job.

Connection settings come from the environment (JENKINS_HOST, JENKINS_BASE_PATH,
COOKIE_JSESSIONID, ...), a .env file, or a YAML/TOML config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(f.logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

			ctx, cancel := context.WithCancel(cmd.Context())

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			defer func() {
				signal.Stop(sigChan)
				cancel()
			}()

			go func() {
				select {
				case sig := <-sigChan:
					slog.Info("interrupt received, aborting in-flight downloads and skipping remaining work", "signal", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			// Fatal errors are already printed; they do not change the exit status
			if _, err := executor.RunFromFiles(ctx, executor.Options{
				JobsPath:    f.jobs,
				ConfigPath:  f.config,
				EnvFile:     f.envFile,
				SummaryPath: f.summary,
				Out:         stdout,
			}); err != nil {
				slog.Debug("run ended early", "error", err)
			}
			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.Flags().StringVarP(&f.jobs, "jobs", "j", joblist.DefaultPath, "file listing one job name per line")
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "optional YAML or TOML config file")
	cmd.Flags().StringVar(&f.envFile, "env-file", "", "env file to load (default: .env in the working directory or a parent)")
	cmd.Flags().StringVar(&f.summary, "summary", "", "write a JSON run summary to this path")
	cmd.Flags().StringVar(&f.logLevel, "log-level", os.Getenv(config.EnvLogLevel), "log level: debug, info, warn or error (default warn)")

	return cmd
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return slog.LevelWarn, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
