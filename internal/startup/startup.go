package startup

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/sysview/sysview/internal/health"
	"github.com/sysview/sysview/internal/logging"
	"github.com/sysview/sysview/internal/regstore"
	"github.com/sysview/sysview/internal/shell"
)

var log = logging.L("startup")

// DisabledFolderName is the subfolder of a Startup folder that holds
// disabled shortcuts.
const DisabledFolderName = "DisabledStartup"

const (
	runPath        = `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`
	runOncePath    = `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`
	wowRunPath     = `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Run`
	wowRunOncePath = `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\RunOnce`
)

type runKey struct {
	hive regstore.Hive
	path string
}

var runKeys = []runKey{
	{regstore.CurrentUser, runPath},
	{regstore.CurrentUser, runOncePath},
	{regstore.LocalMachine, runPath},
	{regstore.LocalMachine, runOncePath},
	{regstore.LocalMachine, wowRunPath},
	{regstore.LocalMachine, wowRunOncePath},
}

// Deps are the platform facilities a Manager reads and writes through.
type Deps struct {
	Registry regstore.Store
	Fs       afero.Fs
	Links    shell.LinkResolver
	Versions shell.VersionReader
	Folders  shell.Folders
	// Health may be nil.
	Health *health.Monitor
}

// Options tunes enumeration.
type Options struct {
	// ShowDisabled adds entries parked under _<name>_Disabled values and in
	// DisabledStartup folders, with Enabled=false.
	ShowDisabled bool
}

// Manager lists and toggles startup entries.
type Manager struct {
	deps Deps
	opts Options
}

// NewManager creates a Manager.
func NewManager(deps Deps, opts Options) *Manager {
	return &Manager{deps: deps, opts: opts}
}

// List returns the startup entries, unique by case-insensitive target path
// and sorted by name. It never fails: unreadable sources are logged and
// skipped.
func (m *Manager) List(ctx context.Context) []Item {
	start := time.Now()
	var items []Item

	for _, rk := range runKeys {
		if ctx.Err() != nil {
			return nil
		}
		items = append(items, m.collectRunKey(rk, true)...)
	}
	for _, f := range m.folders() {
		if ctx.Err() != nil {
			return nil
		}
		items = append(items, m.collectFolder(f, true)...)
	}

	if m.opts.ShowDisabled {
		for _, rk := range runKeys {
			items = append(items, m.collectRunKey(rk, false)...)
		}
		for _, f := range m.folders() {
			items = append(items, m.collectFolder(f, false)...)
		}
	}

	out := Normalize(items)
	log.Debug("startup items enumerated", "count", len(out), logging.KeyDurationMs, time.Since(start).Milliseconds())
	return out
}

type startupFolder struct {
	path     string
	allUsers bool
	label    string
}

func (m *Manager) folders() []startupFolder {
	var out []startupFolder
	if m.deps.Folders.User != "" {
		out = append(out, startupFolder{m.deps.Folders.User, false, "user"})
	}
	if m.deps.Folders.Common != "" {
		out = append(out, startupFolder{m.deps.Folders.Common, true, "common"})
	}
	return out
}

// collectRunKey reads active values when active is set and _X_Disabled
// values otherwise. A value literally named _X_Disabled is always taken as
// a parked X, so it is hidden from the active pass and only listed when
// ShowDisabled is set.
func (m *Manager) collectRunKey(rk runKey, active bool) []Item {
	checkName := "startup:" + rk.hive.String() + `\` + rk.path
	key, err := m.deps.Registry.OpenKey(rk.hive, rk.path, false)
	if err != nil {
		if active {
			status := health.Degraded
			if errors.Is(err, regstore.ErrNotExist) {
				status = health.Healthy
			}
			m.deps.Health.Update(checkName, status, err.Error())
			log.Debug("run key unavailable", logging.KeyPath, checkName, logging.KeyError, err)
		}
		return nil
	}
	defer key.Close()

	names, err := key.ValueNames()
	if err != nil {
		if active {
			m.deps.Health.Update(checkName, health.Degraded, err.Error())
			log.Warn("failed to list run key values", logging.KeyPath, checkName, logging.KeyError, err)
		}
		return nil
	}
	if active {
		m.deps.Health.Update(checkName, health.Healthy, "")
	}

	location := rk.hive.String() + `\` + rk.path
	var items []Item
	for _, valueName := range names {
		original, disabled := disabledValueOriginal(valueName)
		if disabled == active {
			continue
		}
		if !active {
			valueName = original
		}

		raw, err := key.GetString(nameFor(valueName, !active))
		if err != nil {
			log.Debug("skipping run value", logging.KeyPath, location, "value", valueName, logging.KeyError, err)
			continue
		}
		target := ParseLaunchPath(raw)
		if target == "" {
			continue
		}

		name := valueName
		if name == "" {
			name = baseName(target)
		}
		items = append(items, Item{
			Name:      name,
			Path:      target,
			Publisher: m.publisher(target),
			Location:  location,
			Enabled:   active,
			Locator:   RegistryLocator{Hive: rk.hive, Path: rk.path, ValueName: valueName, Disabled: !active},
		})
	}
	return items
}

func nameFor(valueName string, disabled bool) string {
	if disabled {
		return "_" + valueName + "_Disabled"
	}
	return valueName
}

// disabledValueOriginal reports whether name has the _X_Disabled form and
// returns X.
func disabledValueOriginal(name string) (string, bool) {
	const suffix = "_Disabled"
	if len(name) < len(suffix)+1 || !strings.HasPrefix(name, "_") || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	return name[1 : len(name)-len(suffix)], true
}

// collectFolder reads top-level .lnk files of the live folder when active is
// set and of its DisabledStartup subfolder otherwise.
func (m *Manager) collectFolder(f startupFolder, active bool) []Item {
	checkName := "startup:folder:" + f.label
	dir := f.path
	if !active {
		dir = filepath.Join(f.path, DisabledFolderName)
	}

	entries, err := afero.ReadDir(m.deps.Fs, dir)
	if err != nil {
		if active {
			m.deps.Health.Update(checkName, health.Degraded, err.Error())
			log.Warn("failed to read startup folder", logging.KeyPath, dir, logging.KeyError, err)
		}
		return nil
	}
	if active {
		m.deps.Health.Update(checkName, health.Healthy, "")
	}

	var items []Item
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".lnk") {
			continue
		}
		shortcut := filepath.Join(dir, entry.Name())

		target, err := m.deps.Links.ResolveLink(shortcut)
		if err != nil || strings.TrimSpace(target) == "" {
			log.Debug("skipping unresolvable shortcut", logging.KeyPath, shortcut, logging.KeyError, err)
			continue
		}
		if exists, _ := afero.Exists(m.deps.Fs, target); !exists {
			log.Debug("skipping shortcut with missing target", logging.KeyPath, shortcut, "target", target)
			continue
		}

		items = append(items, Item{
			Name:      trimExt(entry.Name()),
			Path:      target,
			Publisher: m.publisher(target),
			Location:  f.path,
			Enabled:   active,
			Locator: FolderLocator{
				Path:     filepath.Join(f.path, entry.Name()),
				AllUsers: f.allUsers,
				Disabled: !active,
			},
		})
	}
	return items
}

func (m *Manager) publisher(target string) string {
	if m.deps.Versions == nil {
		return UnknownPublisher
	}
	company, err := m.deps.Versions.CompanyName(target)
	company = strings.TrimSpace(company)
	if err != nil || company == "" {
		return UnknownPublisher
	}
	return company
}

// Normalize keeps the first item per case-insensitive path, drops unnamed
// items and sorts by name.
func Normalize(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		p := strings.ToLower(it.Path)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
