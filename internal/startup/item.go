// Package startup enumerates programs launched at logon from the registry
// Run keys and the Startup folders, and soft-disables them reversibly.
package startup

import (
	"strings"

	"github.com/sysview/sysview/internal/regstore"
)

// UnknownPublisher is reported when the target has no readable company name.
const UnknownPublisher = "Unknown Publisher"

// Locator identifies a startup entry by its active location plus whether it
// is currently parked. It is either a RegistryLocator or a FolderLocator.
type Locator interface {
	// Key renders a stable display and lookup key. It is never parsed.
	Key() string
	Kind() string
	isLocator()
}

// RegistryLocator names a value in a Run or RunOnce key. ValueName is the
// active name even when Disabled is set.
type RegistryLocator struct {
	Hive      regstore.Hive
	Path      string
	ValueName string
	Disabled  bool
}

// Key names the value as it currently exists, so an entry and its parked
// twin never share a key.
func (l RegistryLocator) Key() string {
	name := l.ValueName
	if l.Disabled {
		name = l.DisabledValueName()
	}
	return "registry:" + l.Hive.String() + `\` + l.Path + `\` + name
}

func (RegistryLocator) Kind() string { return "registry" }
func (RegistryLocator) isLocator()   {}

// DisabledValueName is the name the value carries while disabled.
func (l RegistryLocator) DisabledValueName() string {
	return "_" + l.ValueName + "_Disabled"
}

// FolderLocator names a shortcut at its original path in a Startup folder.
type FolderLocator struct {
	Path string
	// AllUsers is set for shortcuts in the common Startup folder.
	AllUsers bool
	// Disabled is set while the shortcut sits in DisabledStartup.
	Disabled bool
}

// Key names the shortcut file as it currently exists.
func (l FolderLocator) Key() string {
	if l.Disabled {
		return "folder:" + DisabledPath(l.Path)
	}
	return "folder:" + l.Path
}

func (FolderLocator) Kind() string { return "folder" }
func (FolderLocator) isLocator()   {}

// Item is one startup entry.
type Item struct {
	Name      string
	Path      string
	Publisher string
	Location  string
	Enabled   bool
	Locator   Locator
}

// Key returns the locator key, or "" when the item has no locator.
func (i Item) Key() string {
	if i.Locator == nil {
		return ""
	}
	return i.Locator.Key()
}

// View is the serialized form of an Item.
type View struct {
	Key       string `json:"key" yaml:"key"`
	Kind      string `json:"kind" yaml:"kind"`
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	Publisher string `json:"publisher" yaml:"publisher"`
	Location  string `json:"location" yaml:"location"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// View flattens the item for JSON and YAML output.
func (i Item) View() View {
	v := View{
		Key:       i.Key(),
		Name:      i.Name,
		Path:      i.Path,
		Publisher: i.Publisher,
		Location:  i.Location,
		Enabled:   i.Enabled,
	}
	if i.Locator != nil {
		v.Kind = i.Locator.Kind()
	}
	return v
}

// Views flattens a list of items.
func Views(items []Item) []View {
	out := make([]View, 0, len(items))
	for _, it := range items {
		out = append(out, it.View())
	}
	return out
}

// Find looks an item up by exact key, then by case-insensitive name when
// exactly one item carries that name.
func Find(items []Item, keyOrName string) (Item, bool) {
	for _, it := range items {
		if it.Key() == keyOrName {
			return it, true
		}
	}

	var match Item
	n := 0
	for _, it := range items {
		if strings.EqualFold(it.Name, keyOrName) {
			match = it
			n++
		}
	}
	return match, n == 1
}

// ParseLaunchPath extracts the executable from a Run value's command line.
// A leading quote delimits the path; otherwise the first space does.
func ParseLaunchPath(command string) string {
	command = strings.TrimSpace(command)
	if strings.HasPrefix(command, `"`) {
		rest := command[1:]
		if end := strings.Index(rest, `"`); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if idx := strings.Index(command, " "); idx >= 0 {
		return command[:idx]
	}
	return command
}

// baseName returns the last element of a Windows or slash-separated path.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func trimExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
