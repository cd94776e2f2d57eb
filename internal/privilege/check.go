// Package privilege reports which startup changes need an elevated process.
package privilege

import (
	"github.com/sysview/sysview/internal/regstore"
	"github.com/sysview/sysview/internal/startup"
)

// elevatedHives are the registry hives writable only by administrators.
var elevatedHives = map[regstore.Hive]bool{
	regstore.LocalMachine: true,
}

// RequiresElevation returns true if toggling the entry at loc needs admin
// rights: machine-wide Run keys and the all-users Startup folder.
func RequiresElevation(loc startup.Locator) bool {
	switch l := loc.(type) {
	case startup.RegistryLocator:
		return elevatedHives[l.Hive]
	case startup.FolderLocator:
		return l.AllUsers
	default:
		return false
	}
}

// CanToggle reports whether the current process can toggle the entry at loc.
func CanToggle(loc startup.Locator) bool {
	return !RequiresElevation(loc) || IsElevated()
}
