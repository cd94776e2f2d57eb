package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sysview/sysview/internal/logging"
	"github.com/sysview/sysview/internal/regstore"
)

var (
	// ErrNothingToRestore is returned when enabling an entry whose disabled
	// value or shortcut is absent.
	ErrNothingToRestore = errors.New("startup: no disabled entry to restore")
	// ErrNothingToDisable is returned when disabling an entry whose active
	// value or shortcut is absent.
	ErrNothingToDisable = errors.New("startup: no active entry to disable")
	// ErrUnsupportedLocator is returned for items without a known locator.
	ErrUnsupportedLocator = errors.New("startup: unsupported locator")
	// ErrConflict is returned by Toggle when the destination value or
	// shortcut already exists. Replace overwrites it instead.
	ErrConflict = errors.New("startup: destination already exists")
)

// SetEnabled moves item into the requested state and reports success.
// Failures are logged; callers re-enumerate to resynchronize.
func (m *Manager) SetEnabled(item Item, enable bool) bool {
	if err := m.Toggle(item, enable); err != nil {
		log.Warn("startup toggle failed",
			"key", item.Key(),
			"enable", enable,
			logging.KeyError, err,
		)
		return false
	}
	log.Info("startup item toggled", "key", item.Key(), "enable", enable)
	return true
}

// Toggle is SetEnabled with the failure cause. It refuses with ErrConflict
// when an entry already occupies the destination, e.g. an active App next
// to a parked _App_Disabled.
func (m *Manager) Toggle(item Item, enable bool) error {
	return m.toggle(item, enable, false)
}

// Replace is Toggle that overwrites an entry occupying the destination.
func (m *Manager) Replace(item Item, enable bool) error {
	return m.toggle(item, enable, true)
}

func (m *Manager) toggle(item Item, enable, overwrite bool) error {
	switch loc := item.Locator.(type) {
	case RegistryLocator:
		return m.toggleRegistry(loc, enable, overwrite)
	case FolderLocator:
		return m.toggleFolder(loc, enable, overwrite)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedLocator, item.Locator)
	}
}

func (m *Manager) toggleRegistry(loc RegistryLocator, enable, overwrite bool) error {
	key, err := m.deps.Registry.OpenKey(loc.Hive, loc.Path, true)
	if err != nil {
		return fmt.Errorf("open %s\\%s for write: %w", loc.Hive, loc.Path, err)
	}
	defer key.Close()

	from, to := loc.ValueName, loc.DisabledValueName()
	missing := ErrNothingToDisable
	if enable {
		from, to = to, from
		missing = ErrNothingToRestore
	}

	val, err := key.GetValue(from)
	if errors.Is(err, regstore.ErrNotExist) {
		return fmt.Errorf("read %q: %w", from, missing)
	}
	if err != nil {
		return fmt.Errorf("read %q: %w", from, err)
	}

	if !overwrite {
		_, err := key.GetValue(to)
		if err == nil {
			return fmt.Errorf("%q: %w", to, ErrConflict)
		}
		if !errors.Is(err, regstore.ErrNotExist) {
			return fmt.Errorf("read %q: %w", to, err)
		}
	}

	// Write the new name before deleting the old one so a failed write
	// leaves the entry where it was.
	if err := key.SetValue(to, val); err != nil {
		return fmt.Errorf("write %q: %w", to, err)
	}
	if err := key.DeleteValue(from); err != nil {
		return fmt.Errorf("delete %q: %w", from, err)
	}
	return nil
}

// DisabledPath returns where a shortcut is parked while disabled.
func DisabledPath(original string) string {
	return filepath.Join(filepath.Dir(original), DisabledFolderName, filepath.Base(original))
}

func (m *Manager) toggleFolder(loc FolderLocator, enable, overwrite bool) error {
	fs := m.deps.Fs
	from, to := loc.Path, DisabledPath(loc.Path)
	missing := ErrNothingToDisable
	if enable {
		from, to = to, from
		missing = ErrNothingToRestore
	}

	if _, err := fs.Stat(from); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", from, missing)
		}
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if _, err := fs.Stat(to); err == nil && !overwrite {
		return fmt.Errorf("%s: %w", to, ErrConflict)
	}

	if err := fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(to), err)
	}
	if err := fs.Remove(to); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace %s: %w", to, err)
	}
	if err := fs.Rename(from, to); err != nil {
		return fmt.Errorf("move %s to %s: %w", from, to, err)
	}
	return nil
}
