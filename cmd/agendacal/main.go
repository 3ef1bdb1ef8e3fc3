package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agendacal/internal/cache"
	"agendacal/internal/config"
	appLog "agendacal/internal/log"
	"agendacal/internal/pipeline"
	"agendacal/internal/source"
)

const version = "0.1.0"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		appLog.Error("agendacal failed", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "agendacal",
		Short:         "Aggregate calendar sources into a day-by-day agenda",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			appLog.SetLevel(appLog.ParseLevel(opts.logLevel))
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "/etc/agendacal/config.yaml", "Path to config file")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "v", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newShowCommand(opts),
		newSweepCommand(opts),
	)
	return root
}

// openStore picks the cache substrate: diskv when a directory is
// configured, memory otherwise.
func openStore(cfg *config.Config) (cache.Store, error) {
	if cfg.Cache.Dir == "" {
		return cache.NewMemoryStore(), nil
	}
	return cache.NewDiskStore(cfg.Cache.Dir)
}

// newEngine loads the config and wires sources, cache and pipeline.
func newEngine(ctx context.Context, configPath string) (*pipeline.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	appLog.Info("effective config",
		"instance_id", cfg.InstanceID,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"days", int(cfg.Days),
		"refresh", cfg.RefreshCron,
		"sources", len(cfg.Sources),
		"cache_dir", cfg.Cache.Dir,
	)

	q := source.FromConfig(ctx, cfg, store, cfg.Location())
	return pipeline.New(cfg, q, cache.New(store)), cfg, nil
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired cache entries of this instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := newEngine(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			n := engine.Sweep()
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", n)
			return nil
		},
	}
}
