// Package software builds the installed-software inventory from the
// uninstall registry keys and launches vendor uninstallers.
package software

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sysview/sysview/internal/health"
	"github.com/sysview/sysview/internal/logging"
	"github.com/sysview/sysview/internal/regstore"
)

var log = logging.L("software")

const uninstallPath = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`

// Source names the registry view a record was read from.
type Source string

const (
	SourceNative  Source = "native"
	SourceWow6432 Source = "wow6432"
	SourceUser    Source = "user"
)

// Record is one installed application.
type Record struct {
	Name            string     `json:"name" yaml:"name"`
	Version         string     `json:"version,omitempty" yaml:"version,omitempty"`
	Publisher       string     `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	InstallLocation string     `json:"installLocation,omitempty" yaml:"installLocation,omitempty"`
	UninstallString string     `json:"uninstallString,omitempty" yaml:"uninstallString,omitempty"`
	InstallDate     *time.Time `json:"installDate,omitempty" yaml:"installDate,omitempty"`
	Source          Source     `json:"source" yaml:"source"`
	RegistryKey     string     `json:"registryKey" yaml:"registryKey"`
}

// CanUninstall reports whether the record carries an uninstall command.
func (r Record) CanUninstall() bool {
	return strings.TrimSpace(r.UninstallString) != ""
}

// FormattedInstallDate returns the date as YYYY-MM-DD, or "" when unknown.
func (r Record) FormattedInstallDate() string {
	if r.InstallDate == nil {
		return ""
	}
	return r.InstallDate.Format("2006-01-02")
}

type root struct {
	hive   regstore.Hive
	path   string
	source Source
}

// Roots visited in order; the first record seen for a name wins.
var defaultRoots = []root{
	// 64-bit applications
	{regstore.LocalMachine, uninstallPath, SourceNative},
	// 32-bit applications on 64-bit Windows
	{regstore.LocalMachine, `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`, SourceWow6432},
}

var userRoot = root{regstore.CurrentUser, uninstallPath, SourceUser}

// Options tunes enumeration.
type Options struct {
	// IncludeUser adds the per-user uninstall key after the machine roots.
	IncludeUser bool
	// SkipSystemComponents drops entries flagged SystemComponent=1.
	SkipSystemComponents bool
}

// Enumerator reads the uninstall keys.
type Enumerator struct {
	reg    regstore.Store
	opts   Options
	health *health.Monitor
}

// NewEnumerator creates an enumerator over reg. monitor may be nil.
func NewEnumerator(reg regstore.Store, opts Options, monitor *health.Monitor) *Enumerator {
	return &Enumerator{reg: reg, opts: opts, health: monitor}
}

func (e *Enumerator) roots() []root {
	roots := append([]root(nil), defaultRoots...)
	if e.opts.IncludeUser {
		roots = append(roots, userRoot)
	}
	return roots
}

// List returns the installed software, unique by name and sorted by name.
// It never fails: unreadable roots and subkeys are logged and skipped.
func (e *Enumerator) List(ctx context.Context) []Record {
	start := time.Now()
	var records []Record

	for _, r := range e.roots() {
		if ctx.Err() != nil {
			log.Debug("software enumeration cancelled")
			return nil
		}

		items, err := e.collectRoot(ctx, r)
		name := sourceName(r)
		if err != nil {
			status := health.Degraded
			if errors.Is(err, regstore.ErrNotExist) {
				// A missing WOW6432Node on 32-bit Windows is normal.
				status = health.Healthy
			}
			e.health.Update(name, status, err.Error())
			log.Warn("uninstall root unavailable", logging.KeySource, string(r.source), logging.KeyPath, r.path, logging.KeyError, err)
			continue
		}
		e.health.Update(name, health.Healthy, "")
		records = append(records, items...)
	}

	out := Normalize(records)
	log.Debug("software enumerated", "count", len(out), logging.KeyDurationMs, time.Since(start).Milliseconds())
	return out
}

func sourceName(r root) string {
	return "software:" + r.hive.String() + ":" + string(r.source)
}

func (e *Enumerator) collectRoot(ctx context.Context, r root) ([]Record, error) {
	key, err := e.reg.OpenKey(r.hive, r.path, false)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	subkeys, err := key.SubKeyNames()
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, sub := range subkeys {
		if ctx.Err() != nil {
			break
		}
		rec, ok := e.readSubKey(r, sub)
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// readSubKey returns ok=false for entries without a display name, for
// hidden system components when configured, and for unreadable subkeys.
func (e *Enumerator) readSubKey(r root, name string) (Record, bool) {
	sub, err := e.reg.OpenKey(r.hive, r.path+`\`+name, false)
	if err != nil {
		log.Debug("skipping uninstall subkey", logging.KeyPath, name, logging.KeyError, err)
		return Record{}, false
	}
	defer sub.Close()

	displayName, err := sub.GetString("DisplayName")
	displayName = strings.TrimSpace(displayName)
	if err != nil || displayName == "" {
		return Record{}, false
	}

	if e.opts.SkipSystemComponents && isSystemComponent(sub, displayName) {
		return Record{}, false
	}

	return Record{
		Name:            displayName,
		Version:         readString(sub, "DisplayVersion"),
		Publisher:       readString(sub, "Publisher"),
		InstallLocation: readString(sub, "InstallLocation"),
		UninstallString: readString(sub, "UninstallString"),
		InstallDate:     ParseInstallDate(readString(sub, "InstallDate")),
		Source:          r.source,
		RegistryKey:     name,
	}, true
}

func readString(key regstore.Key, name string) string {
	val, err := key.GetString(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(val)
}

func isSystemComponent(key regstore.Key, displayName string) bool {
	if v, err := key.GetInteger("SystemComponent"); err == nil && v == 1 {
		return true
	}
	return strings.HasPrefix(displayName, "Update for") ||
		strings.HasPrefix(displayName, "Security Update for") ||
		strings.HasPrefix(displayName, "Hotfix for")
}

// Normalize keeps the first record per name, drops unnamed records and
// sorts by name. The input order decides which duplicate survives.
func Normalize(records []Record) []Record {
	seen := make(map[string]bool, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Name == "" || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Filter returns the records whose name, publisher or version contains query,
// ignoring case. An empty query returns records unchanged.
func Filter(records []Record, query string) []Record {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return records
	}
	var out []Record
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Name), query) ||
			strings.Contains(strings.ToLower(r.Publisher), query) ||
			strings.Contains(strings.ToLower(r.Version), query) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record with the given name.
func Find(records []Record, name string) (Record, bool) {
	for _, r := range records {
		if r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}
