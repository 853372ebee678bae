package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/intervue/internal/config"
	"github.com/okian/intervue/pkg/logger"
)

const app = "intervue"

// Actual version can be specified in build command.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: stop already ran
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
	json       bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           app,
		Short:         app + " runs AI interviews: the attempt server, offline scoring and a scripted candidate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&f.json, "json", "j", false, "log in JSON")

	root.AddCommand(
		newServeCmd(f),
		newScoreCmd(f),
		newSimulateCmd(f),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and initializes the global logger from it.
func setup(ctx context.Context, f *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(ctx, f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.json {
		cfg.LogFormat = "json"
	}

	opts := []logger.Option{logger.WithJSON(cfg.LogFormat == "json")}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, 0, 0, 0))
	}
	if err := logger.Init(opts...); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", app, version)
		},
	}
}
