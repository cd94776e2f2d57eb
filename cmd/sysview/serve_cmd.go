package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sysview/sysview/internal/api"
	"github.com/sysview/sysview/internal/audit"
	"github.com/sysview/sysview/internal/controller"
	"github.com/sysview/sysview/internal/workerpool"
)

const drainTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API on the loopback interface",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		cfg := a.cfg

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pool := workerpool.New(cfg.Workers, cfg.QueueSize)
		ctrl := controller.New(controller.Deps{
			Software: a.software,
			Launcher: a.uninstaller,
			Startup:  a.startup,
			System:   a.system,
			Pool:     pool,
			Journal:  a.recorder(),
		}, controller.Config{
			SearchDebounce:        time.Duration(cfg.SearchDebounceMs) * time.Millisecond,
			SystemRefreshInterval: time.Duration(cfg.SystemRefreshIntervalSeconds) * time.Second,
		})

		go ctrl.Run(ctx)

		a.journal.Record(audit.ActionServeStart, cfg.ListenAddr, map[string]any{"version": version})
		log.Info("starting sysview", "version", version, "addr", cfg.ListenAddr)
		err = api.NewServer(ctrl, a.health, version).ListenAndServe(ctx, cfg.ListenAddr)

		log.Info("shutting down")
		stop()
		ctrl.Close()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		pool.Shutdown(drainCtx)
		a.journal.Record(audit.ActionServeStop, cfg.ListenAddr, nil)
		return err
	},
}
