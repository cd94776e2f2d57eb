//go:build windows

package shell

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"golang.org/x/sys/windows"
)

// Native returns the live shell implementations.
func Native() Platform {
	return Platform{
		Launcher: shellExecute{},
		Links:    comLinkResolver{},
		Versions: versionResource{},
	}
}

// StartupFolders resolves FOLDERID_Startup and FOLDERID_CommonStartup.
func StartupFolders() (Folders, error) {
	user, userErr := windows.KnownFolderPath(windows.FOLDERID_Startup, 0)
	common, commonErr := windows.KnownFolderPath(windows.FOLDERID_CommonStartup, 0)
	if userErr != nil && commonErr != nil {
		return Folders{}, fmt.Errorf("resolve startup folders: %w", errors.Join(userErr, commonErr))
	}
	return Folders{User: user, Common: common}, nil
}

type shellExecute struct{}

// Launch uses the "open" verb so installers that demand elevation raise the
// UAC prompt themselves.
func (shellExecute) Launch(file, args string) error {
	verb, err := windows.UTF16PtrFromString("open")
	if err != nil {
		return err
	}
	filePtr, err := windows.UTF16PtrFromString(file)
	if err != nil {
		return fmt.Errorf("invalid executable path: %w", err)
	}
	var argsPtr *uint16
	if args != "" {
		if argsPtr, err = windows.UTF16PtrFromString(args); err != nil {
			return fmt.Errorf("invalid arguments: %w", err)
		}
	}

	if err := windows.ShellExecute(0, verb, filePtr, argsPtr, nil, windows.SW_SHOWNORMAL); err != nil {
		return fmt.Errorf("ShellExecute %s: %w", file, err)
	}
	return nil
}

type comLinkResolver struct{}

// ResolveLink asks WScript.Shell for the shortcut's TargetPath. COM is
// initialized per call on a locked thread.
func (comLinkResolver) ResolveLink(path string) (string, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		// S_FALSE: already initialized on this thread, still needs the
		// matching CoUninitialize.
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			return "", fmt.Errorf("failed to initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return "", fmt.Errorf("failed to create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	wshell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return "", fmt.Errorf("failed to query WScript.Shell: %w", err)
	}
	defer wshell.Release()

	shortcutVar, err := oleutil.CallMethod(wshell, "CreateShortcut", path)
	if err != nil {
		return "", fmt.Errorf("CreateShortcut %s: %w", path, err)
	}
	shortcut := shortcutVar.ToIDispatch()
	defer shortcut.Release()

	target, err := oleutil.GetProperty(shortcut, "TargetPath")
	if err != nil {
		return "", fmt.Errorf("read TargetPath of %s: %w", path, err)
	}
	defer target.Clear()

	resolved := target.ToString()
	if resolved == "" {
		return "", fmt.Errorf("shortcut %s has no file target", path)
	}
	return resolved, nil
}

type versionResource struct{}

// CompanyName reads StringFileInfo\<lang><codepage>\CompanyName, trying the
// translations the file declares before the common en-US ones.
func (versionResource) CompanyName(path string) (string, error) {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil {
		return "", fmt.Errorf("GetFileVersionInfoSize %s: %w", path, err)
	}
	if size == 0 {
		return "", fmt.Errorf("%s has no version resource", path)
	}

	block := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&block[0])); err != nil {
		return "", fmt.Errorf("GetFileVersionInfo %s: %w", path, err)
	}

	for _, tr := range translations(block) {
		var ptr *uint16
		var n uint32
		sub := fmt.Sprintf(`\StringFileInfo\%s\CompanyName`, tr)
		if err := windows.VerQueryValue(unsafe.Pointer(&block[0]), sub, unsafe.Pointer(&ptr), &n); err != nil || n == 0 || ptr == nil {
			continue
		}
		if name := windows.UTF16PtrToString(ptr); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%s has no CompanyName", path)
}

func translations(block []byte) []string {
	var out []string

	var ptr *[2]uint16
	var n uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&block[0]), `\VarFileInfo\Translation`, unsafe.Pointer(&ptr), &n); err == nil && ptr != nil && n >= 4 {
		out = append(out, fmt.Sprintf("%04x%04x", ptr[0], ptr[1]))
	}
	return append(out, "040904b0", "040904e4", "000004b0")
}
