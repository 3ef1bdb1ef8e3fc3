package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"agendacal/internal/cache"
	"agendacal/internal/config"
	appLog "agendacal/internal/log"
	"agendacal/internal/pipeline"
	"agendacal/internal/source"
	"agendacal/internal/web"
)

// sweepSchedule runs the cache sweep once an hour.
const sweepSchedule = "17 * * * *"

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background refresh and cache sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, cfg, err := newEngine(ctx, opts.configPath)
			if err != nil {
				return err
			}
			// --listen overrides the config file.
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("agendacal starting", "version", version)
			srv := web.NewServer(cfg, engine)

			sched, err := startScheduler(ctx, srv, cfg)
			if err != nil {
				return err
			}
			defer sched.stop()

			go watchReload(ctx, srv, sched, opts.configPath)

			err = srv.Serve(ctx)
			appLog.Info("agendacal exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// scheduler owns the cron jobs of a running server. The refresh job
// bypasses the cache so each tick really reaches the sources.
type scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	srv     *web.Server
	spec    string
	refresh cron.EntryID
}

// startScheduler registers the refresh and sweep jobs and starts cron.
func startScheduler(ctx context.Context, srv *web.Server, cfg *config.Config) (*scheduler, error) {
	s := &scheduler{ctx: ctx, cron: cron.New(), srv: srv}
	if err := s.reschedule(cfg.RefreshCron); err != nil {
		return nil, err
	}

	if _, err := s.cron.AddFunc(sweepSchedule, func() {
		srv.WithEngine(func(e *pipeline.Engine) {
			if n := e.Sweep(); n > 0 {
				appLog.Info("cache sweep", "removed", n)
			}
		})
	}); err != nil {
		return nil, err
	}

	s.cron.Start()
	appLog.Info("scheduler started", "refresh", s.spec, "sweep", sweepSchedule)
	return s, nil
}

// reschedule replaces the refresh job when spec differs from the current
// one. An invalid spec keeps the previous job.
func (s *scheduler) reschedule(spec string) error {
	if spec == s.spec && s.refresh != 0 {
		return nil
	}
	id, err := s.cron.AddFunc(spec, s.runRefresh)
	if err != nil {
		return fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	if s.refresh != 0 {
		s.cron.Remove(s.refresh)
	}
	s.refresh, s.spec = id, spec
	return nil
}

func (s *scheduler) runRefresh() {
	s.srv.WithEngine(func(e *pipeline.Engine) {
		n := len(e.Refresh(s.ctx))
		appLog.Debug("scheduled refresh", "events", n)
	})
}

func (s *scheduler) stop() {
	<-s.cron.Stop().Done()
}

// watchReload re-reads the config on SIGHUP, swaps it into the running
// engine and moves the refresh job to the new schedule. Listen address,
// auth and cache dir changes need a restart.
func watchReload(ctx context.Context, srv *web.Server, sched *scheduler, configPath string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			appLog.Error("config reload failed", err, "config_path", configPath)
			continue
		}
		store, err := openStore(cfg)
		if err != nil {
			appLog.Error("config reload failed", err, "cache_dir", cfg.Cache.Dir)
			continue
		}
		q := source.FromConfig(ctx, cfg, store, cfg.Location())
		srv.WithEngine(func(e *pipeline.Engine) {
			e.Reconfigure(cfg, q)
		})
		if err := sched.reschedule(cfg.RefreshCron); err != nil {
			appLog.Error("keeping previous refresh schedule", err)
		}
		appLog.Info("config reloaded", "sources", len(cfg.Sources), "key", cache.Fingerprint(cfg))
	}
}
