package software

import (
	"strings"

	"github.com/sysview/sysview/internal/logging"
	"github.com/sysview/sysview/internal/shell"
)

// ParseCommandLine splits an UninstallString into the executable and its
// arguments. A leading quote delimits the executable; otherwise the first
// space does. A command with an unterminated leading quote is malformed and
// yields empty results.
func ParseCommandLine(s string) (exe, args string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}

	if strings.HasPrefix(s, `"`) {
		rest := s[1:]
		end := strings.Index(rest, `"`)
		if end < 0 {
			return "", ""
		}
		return rest[:end], strings.TrimSpace(rest[end+1:])
	}

	if idx := strings.Index(s, " "); idx >= 0 {
		return s[:idx], strings.TrimSpace(s[idx+1:])
	}
	return s, ""
}

// Uninstaller launches vendor uninstallers and Explorer windows.
type Uninstaller struct {
	launcher shell.Launcher
}

// NewUninstaller creates an Uninstaller that launches through l.
func NewUninstaller(l shell.Launcher) *Uninstaller {
	return &Uninstaller{launcher: l}
}

// Uninstall starts the uninstaller named by commandLine and returns without
// waiting for it. It reports false for an empty command or a failed launch.
func (u *Uninstaller) Uninstall(commandLine string) bool {
	exe, args := ParseCommandLine(commandLine)
	if exe == "" {
		if strings.TrimSpace(commandLine) != "" {
			log.Warn("malformed uninstall command", "command", commandLine)
		}
		return false
	}

	if err := u.launcher.Launch(exe, args); err != nil {
		log.Warn("uninstaller launch failed", logging.KeyPath, exe, logging.KeyError, err)
		return false
	}
	log.Info("uninstaller launched", logging.KeyPath, exe)
	return true
}

// OpenInstallLocation opens path in Explorer.
func (u *Uninstaller) OpenInstallLocation(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}

	if err := u.launcher.Launch("explorer.exe", quoteArg(path)); err != nil {
		log.Warn("explorer launch failed", logging.KeyPath, path, logging.KeyError, err)
		return false
	}
	return true
}

func quoteArg(s string) string {
	if strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, `"`) {
		return `"` + s + `"`
	}
	return s
}
