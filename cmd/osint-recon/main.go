package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Abhracodec/osint-recon/config"
	"github.com/Abhracodec/osint-recon/internal/bootstrap"
)

// app carries state shared by every subcommand once the root pre-run has loaded it.
type app struct {
	cfg    config.AppConfig
	logger *slog.Logger

	flagVerbose  bool
	flagEnvFiles []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		slog.Error("osint-recon failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command failure to the shell
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "osint-recon",
		Short:         "Queue and run authorized OSINT reconnaissance jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().BoolVar(&a.flagVerbose, "verbose", false, "debug logging")
	root.PersistentFlags().StringSliceVar(&a.flagEnvFiles, "env-file", nil, "dotenv files to load before the environment is read (default .env)")

	root.AddCommand(
		newServeCmd(a),
		newSubmitCmd(a),
		newStatusCmd(a),
		newResultCmd(a),
		newCancelCmd(a),
		newQueueStatsCmd(a),
		newScanCmd(a),
		newMigrateCmd(a),
		newModulesCmd(a),
		newVersionCmd(),
	)
	return root
}

// init loads configuration and installs the logger. Logs go to stderr so
// command output on stdout stays machine readable.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := bootstrap.LoadConfig(a.flagEnvFiles...)
	if err != nil {
		return err
	}
	if a.flagVerbose {
		cfg.Observability.Logging.Level = "debug"
	}
	a.cfg = cfg
	a.logger = bootstrap.NewLogger(cmd.ErrOrStderr(), cfg.Observability.Logging)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// version needs no configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				_, err := fmt.Fprintln(out, "osint-recon: version info not available")
				return err
			}
			if _, err := fmt.Fprintf(out, "osint-recon: %s\ngo:          %s\n", info.Main.Version, info.GoVersion); err != nil {
				return err
			}
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					if _, err := fmt.Fprintf(out, "commit:      %s\n", s.Value); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
