package privilege

import (
	"testing"

	"github.com/sysview/sysview/internal/regstore"
	"github.com/sysview/sysview/internal/startup"
)

func TestRequiresElevation(t *testing.T) {
	tests := []struct {
		name string
		loc  startup.Locator
		want bool
	}{
		{"hkcu run", startup.RegistryLocator{Hive: regstore.CurrentUser, Path: `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`, ValueName: "a"}, false},
		{"hklm run", startup.RegistryLocator{Hive: regstore.LocalMachine, Path: `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`, ValueName: "a"}, true},
		{"user folder", startup.FolderLocator{Path: "/u/a.lnk"}, false},
		{"common folder", startup.FolderLocator{Path: "/c/a.lnk", AllUsers: true}, true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiresElevation(tt.loc); got != tt.want {
				t.Fatalf("RequiresElevation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanToggleUserEntries(t *testing.T) {
	if !CanToggle(startup.FolderLocator{Path: "/u/a.lnk"}) {
		t.Fatal("per-user entries never need elevation")
	}
	hklm := startup.RegistryLocator{Hive: regstore.LocalMachine}
	if CanToggle(hklm) != IsElevated() {
		t.Fatal("machine entries should follow the process elevation")
	}
}
