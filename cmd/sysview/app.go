package main

import (
	"errors"
	"io"

	"github.com/spf13/afero"

	"github.com/sysview/sysview/internal/audit"
	"github.com/sysview/sysview/internal/config"
	"github.com/sysview/sysview/internal/controller"
	"github.com/sysview/sysview/internal/health"
	"github.com/sysview/sysview/internal/logging"
	"github.com/sysview/sysview/internal/regstore"
	"github.com/sysview/sysview/internal/shell"
	"github.com/sysview/sysview/internal/software"
	"github.com/sysview/sysview/internal/startup"
	"github.com/sysview/sysview/internal/sysinfo"
)

// app holds the native collaborators shared by the commands.
type app struct {
	cfg         *config.Config
	health      *health.Monitor
	software    *software.Enumerator
	uninstaller *software.Uninstaller
	startup     *startup.Manager
	system      *sysinfo.Collector
	journal     *audit.Journal
	logs        io.Closer
}

// openApp loads the config and builds the native collaborators. The caller
// must Close the returned app.
func openApp() (*app, error) {
	cfg, closer, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := newApp(cfg)
	a.logs = closer
	return a, nil
}

func newApp(cfg *config.Config) *app {
	mon := health.NewMonitor()
	reg := regstore.NewNative()
	platform := shell.Native()

	folders, err := shell.StartupFolders()
	if err != nil {
		log.Warn("startup folders unavailable", logging.KeyError, err)
	}

	var journal *audit.Journal
	if cfg.AuditEnabled {
		journal, err = audit.Open(cfg.AuditPath(), cfg.AuditMaxSizeMB, cfg.AuditMaxBackups)
		if err != nil {
			log.Warn("action journal unavailable", logging.KeyPath, cfg.AuditPath(), logging.KeyError, err)
		}
	}

	return &app{
		cfg:    cfg,
		health: mon,
		software: software.NewEnumerator(reg, software.Options{
			IncludeUser:          cfg.IncludeUserSoftware,
			SkipSystemComponents: cfg.SkipSystemComponents,
		}, mon),
		uninstaller: software.NewUninstaller(platform.Launcher),
		startup: startup.NewManager(startup.Deps{
			Registry: reg,
			Fs:       afero.NewOsFs(),
			Links:    platform.Links,
			Versions: platform.Versions,
			Folders:  folders,
			Health:   mon,
		}, startup.Options{ShowDisabled: cfg.ShowDisabledStartup}),
		system:  sysinfo.NewCollector(nil, mon),
		journal: journal,
	}
}

// recorder returns the journal as a controller dependency, keeping a
// missing journal a nil interface.
func (a *app) recorder() controller.Recorder {
	if a.journal == nil {
		return nil
	}
	return a.journal
}

func (a *app) Close() error {
	var errs []error
	if err := a.journal.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
