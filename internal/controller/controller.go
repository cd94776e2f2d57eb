// Package controller owns the latest inventory snapshots, runs enumerations
// on the worker pool and publishes change events to subscribers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sysview/sysview/internal/audit"
	"github.com/sysview/sysview/internal/logging"
	"github.com/sysview/sysview/internal/privilege"
	"github.com/sysview/sysview/internal/regstore"
	"github.com/sysview/sysview/internal/software"
	"github.com/sysview/sysview/internal/startup"
	"github.com/sysview/sysview/internal/sysinfo"
	"github.com/sysview/sysview/internal/workerpool"
)

var log = logging.L("controller")

var (
	ErrNotFound          = errors.New("not found")
	ErrNoUninstaller     = errors.New("no uninstall command")
	ErrNoInstallLocation = errors.New("no install location")
	ErrLaunchFailed      = errors.New("launch failed")
	ErrElevationRequired = errors.New("administrator rights required")
)

// SoftwareLister enumerates installed software.
type SoftwareLister interface {
	List(ctx context.Context) []software.Record
}

// Launcher starts uninstallers and Explorer windows.
type Launcher interface {
	Uninstall(commandLine string) bool
	OpenInstallLocation(path string) bool
}

// StartupManager enumerates and toggles startup entries.
type StartupManager interface {
	List(ctx context.Context) []startup.Item
	Toggle(item startup.Item, enable bool) error
	Replace(item startup.Item, enable bool) error
}

// SystemCollector reads the system snapshot.
type SystemCollector interface {
	Collect(ctx context.Context) (*sysinfo.Snapshot, error)
}

// Recorder journals the changes a Controller makes to the machine.
type Recorder interface {
	Record(action, target string, details map[string]any)
}

// Deps are the collaborators a Controller drives. Journal may be nil.
type Deps struct {
	Software SoftwareLister
	Launcher Launcher
	Startup  StartupManager
	System   SystemCollector
	Pool     *workerpool.Pool
	Journal  Recorder
}

// Config holds the controller timings.
type Config struct {
	SearchDebounce        time.Duration
	SystemRefreshInterval time.Duration
}

const (
	defaultSearchDebounce = 200 * time.Millisecond
	defaultSystemInterval = time.Second
	subscriberBuffer      = 16
)

// Controller serializes access to the snapshots. Lists are replaced
// wholesale and never mutated, so readers may keep the slices they get.
type Controller struct {
	deps Deps
	cfg  Config

	mu          sync.RWMutex
	software    []software.Record
	startup     []startup.Item
	system      *sysinfo.Snapshot
	softwareGen uint64
	startupGen  uint64
	systemGen   uint64

	searchMu    sync.Mutex
	searchGen   uint64
	searchTimer *time.Timer
	query       string

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	dropped uint64
	closed  bool
}

// DefaultConfig returns a 200ms search debounce and a one second system
// refresh.
func DefaultConfig() Config {
	return Config{
		SearchDebounce:        defaultSearchDebounce,
		SystemRefreshInterval: defaultSystemInterval,
	}
}

// New creates a controller. A zero debounce evaluates searches right away.
func New(deps Deps, cfg Config) *Controller {
	if cfg.SearchDebounce < 0 {
		cfg.SearchDebounce = 0
	}
	if cfg.SystemRefreshInterval <= 0 {
		cfg.SystemRefreshInterval = defaultSystemInterval
	}
	return &Controller{
		deps: deps,
		cfg:  cfg,
		subs: make(map[int]chan Event),
	}
}

// Software returns the current software snapshot.
func (c *Controller) Software() []software.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.software
}

// Startup returns the current startup snapshot.
func (c *Controller) Startup() []startup.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startup
}

// System returns the latest system snapshot, or nil before the first one.
func (c *Controller) System() *sysinfo.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.system
}

// PoolStats reports the worker pool counters.
func (c *Controller) PoolStats() workerpool.Stats {
	return c.deps.Pool.Stats()
}

// submit runs job on the pool and returns a channel closed when it ends.
func (c *Controller) submit(what string, job func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	ok := c.deps.Pool.Submit("refresh:"+what, func(ctx context.Context) {
		defer close(done)
		job(ctx)
	})
	if !ok {
		log.Warn("refresh rejected", "list", what)
		close(done)
	}
	return done
}

// RefreshSoftware re-enumerates installed software. The result is applied
// only if no newer software refresh was issued meanwhile.
func (c *Controller) RefreshSoftware() <-chan struct{} {
	c.mu.Lock()
	c.softwareGen++
	gen := c.softwareGen
	c.mu.Unlock()

	return c.submit("software", func(ctx context.Context) {
		records := c.deps.Software.List(ctx)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if gen != c.softwareGen {
			c.mu.Unlock()
			log.Debug("discarding stale software result", "generation", gen)
			return
		}
		c.software = records
		c.mu.Unlock()

		c.publish(Event{Type: EventSoftware, Generation: gen, Count: len(records)})
	})
}

// RefreshStartup re-enumerates startup entries, newest request wins.
func (c *Controller) RefreshStartup() <-chan struct{} {
	c.mu.Lock()
	c.startupGen++
	gen := c.startupGen
	c.mu.Unlock()

	return c.submit("startup", func(ctx context.Context) {
		items := c.deps.Startup.List(ctx)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if gen != c.startupGen {
			c.mu.Unlock()
			log.Debug("discarding stale startup result", "generation", gen)
			return
		}
		c.startup = items
		c.mu.Unlock()

		c.publish(Event{Type: EventStartup, Generation: gen, Count: len(items)})
	})
}

// RefreshSystem collects a new system snapshot, newest request wins.
func (c *Controller) RefreshSystem() <-chan struct{} {
	c.mu.Lock()
	c.systemGen++
	gen := c.systemGen
	c.mu.Unlock()

	return c.submit("system", func(ctx context.Context) {
		snap, err := c.deps.System.Collect(ctx)
		if err != nil {
			log.Debug("system collection aborted", logging.KeyError, err)
			return
		}

		c.mu.Lock()
		if gen != c.systemGen {
			c.mu.Unlock()
			return
		}
		c.system = snap
		c.mu.Unlock()

		c.publish(Event{Type: EventSystem, Generation: gen, Data: snap})
	})
}

// RefreshAll refreshes every list and returns when all three finish.
func (c *Controller) RefreshAll(ctx context.Context) error {
	for _, done := range []<-chan struct{}{c.RefreshSoftware(), c.RefreshStartup(), c.RefreshSystem()} {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Run refreshes everything once and then polls the system snapshot until
// ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.RefreshSoftware()
	c.RefreshStartup()
	c.RefreshSystem()

	ticker := time.NewTicker(c.cfg.SystemRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.RefreshSystem()
		}
	}
}

// Search schedules a filter of the software list. Only the last query
// issued within the debounce window is evaluated.
func (c *Controller) Search(query string) {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	c.searchGen++
	gen := c.searchGen
	if c.searchTimer != nil {
		c.searchTimer.Stop()
	}
	c.searchTimer = time.AfterFunc(c.cfg.SearchDebounce, func() {
		c.runSearch(gen, query)
	})
}

func (c *Controller) runSearch(gen uint64, query string) {
	c.searchMu.Lock()
	if gen != c.searchGen {
		c.searchMu.Unlock()
		return
	}
	c.query = query
	c.searchMu.Unlock()

	results := software.Filter(c.Software(), query)
	c.publish(Event{Type: EventSearch, Generation: gen, Query: query, Count: len(results), Data: results})
}

// Query returns the last evaluated search query.
func (c *Controller) Query() string {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()
	return c.query
}

// FilteredSoftware applies the last evaluated query to the current list.
func (c *Controller) FilteredSoftware() []software.Record {
	return software.Filter(c.Software(), c.Query())
}

// Uninstall launches the uninstaller of the named application.
func (c *Controller) Uninstall(name string) error {
	rec, ok := software.Find(c.Software(), name)
	if !ok {
		return fmt.Errorf("software %q: %w", name, ErrNotFound)
	}
	if !rec.CanUninstall() {
		return fmt.Errorf("software %q: %w", name, ErrNoUninstaller)
	}
	if !c.deps.Launcher.Uninstall(rec.UninstallString) {
		return fmt.Errorf("uninstall %q: %w", name, ErrLaunchFailed)
	}

	c.record(audit.ActionUninstallLaunched, name, map[string]any{"command": rec.UninstallString})
	c.publish(Event{Type: EventAction, Action: "uninstall", Target: name})
	c.RefreshSoftware()
	return nil
}

// OpenInstallLocation opens the named application's folder in Explorer.
func (c *Controller) OpenInstallLocation(name string) error {
	rec, ok := software.Find(c.Software(), name)
	if !ok {
		return fmt.Errorf("software %q: %w", name, ErrNotFound)
	}
	if rec.InstallLocation == "" {
		return fmt.Errorf("software %q: %w", name, ErrNoInstallLocation)
	}
	if !c.deps.Launcher.OpenInstallLocation(rec.InstallLocation) {
		return fmt.Errorf("open %q: %w", rec.InstallLocation, ErrLaunchFailed)
	}
	c.record(audit.ActionLocationOpened, name, map[string]any{"path": rec.InstallLocation})
	return nil
}

// SetStartupEnabled toggles the entry matching keyOrName in the current
// startup snapshot and refreshes the list on success. It fails with
// startup.ErrConflict when the destination is already occupied.
func (c *Controller) SetStartupEnabled(keyOrName string, enable bool) error {
	return c.setStartup(keyOrName, enable, false)
}

// ReplaceStartupEntry is SetStartupEnabled that overwrites an entry already
// at the destination.
func (c *Controller) ReplaceStartupEntry(keyOrName string, enable bool) error {
	return c.setStartup(keyOrName, enable, true)
}

func (c *Controller) setStartup(keyOrName string, enable, overwrite bool) error {
	item, ok := startup.Find(c.Startup(), keyOrName)
	if !ok {
		return fmt.Errorf("startup item %q: %w", keyOrName, ErrNotFound)
	}

	toggle := c.deps.Startup.Toggle
	if overwrite {
		toggle = c.deps.Startup.Replace
	}
	if err := toggle(item, enable); err != nil {
		if privilege.RequiresElevation(item.Locator) && isPermissionError(err) {
			err = fmt.Errorf("%w: %w", ErrElevationRequired, err)
		}
		log.Warn("startup toggle failed", "key", item.Key(), "enable", enable, logging.KeyError, err)
		return err
	}

	log.Info("startup item toggled", "key", item.Key(), "enable", enable, "overwrite", overwrite)
	c.record(JournalAction(enable), item.Key(), map[string]any{"name": item.Name, "path": item.Path, "overwrite": overwrite})
	c.publish(Event{Type: EventAction, Action: actionName(enable), Target: item.Key()})
	c.RefreshStartup()
	return nil
}

func actionName(enable bool) string {
	if enable {
		return "enable"
	}
	return "disable"
}

// JournalAction names the journal action for a startup toggle.
func JournalAction(enable bool) string {
	if enable {
		return audit.ActionStartupEnabled
	}
	return audit.ActionStartupDisabled
}

func (c *Controller) record(action, target string, details map[string]any) {
	if c.deps.Journal != nil {
		c.deps.Journal.Record(action, target, details)
	}
}

func isPermissionError(err error) bool {
	return errors.Is(err, regstore.ErrAccessDenied) || errors.Is(err, os.ErrPermission)
}

// Close stops the pending search and closes every subscriber channel.
func (c *Controller) Close() {
	c.searchMu.Lock()
	if c.searchTimer != nil {
		c.searchTimer.Stop()
	}
	c.searchGen++
	c.searchMu.Unlock()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}
