//go:build windows

package regstore

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

var procRegSetValueEx = windows.NewLazySystemDLL("advapi32.dll").NewProc("RegSetValueExW")

// Native is the live registry.
type Native struct{}

// NewNative returns the live registry store.
func NewNative() Store {
	return Native{}
}

// OpenKey implements Store.
func (Native) OpenKey(hive Hive, path string, write bool) (Key, error) {
	root, err := resolveRoot(hive)
	if err != nil {
		return nil, err
	}

	access := uint32(registry.QUERY_VALUE | registry.ENUMERATE_SUB_KEYS | registry.WOW64_64KEY)
	if write {
		access |= registry.SET_VALUE
	}

	k, err := registry.OpenKey(root, path, access)
	if err != nil {
		return nil, fmt.Errorf("open %s\\%s: %w", hive, path, mapErr(err))
	}
	return nativeKey{k}, nil
}

func resolveRoot(hive Hive) (registry.Key, error) {
	switch hive {
	case CurrentUser:
		return registry.CURRENT_USER, nil
	case LocalMachine:
		return registry.LOCAL_MACHINE, nil
	default:
		return 0, fmt.Errorf("unknown registry hive: %s", hive)
	}
}

// mapErr translates Win32 errors into the package sentinels while keeping the
// original text.
func mapErr(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotExist):
		return ErrNotExist
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return ErrAccessDenied
	default:
		return err
	}
}

type nativeKey struct {
	k registry.Key
}

func (n nativeKey) SubKeyNames() ([]string, error) {
	names, err := n.k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("read subkeys: %w", mapErr(err))
	}
	return names, nil
}

func (n nativeKey) ValueNames() ([]string, error) {
	names, err := n.k.ReadValueNames(-1)
	if err != nil {
		return nil, fmt.Errorf("read values: %w", mapErr(err))
	}
	return names, nil
}

func (n nativeKey) GetString(name string) (string, error) {
	s, _, err := n.k.GetStringValue(name)
	if err != nil {
		return "", fmt.Errorf("value %q: %w", name, mapErr(err))
	}
	return s, nil
}

func (n nativeKey) GetInteger(name string) (uint64, error) {
	v, _, err := n.k.GetIntegerValue(name)
	if err != nil {
		return 0, fmt.Errorf("value %q: %w", name, mapErr(err))
	}
	return v, nil
}

func (n nativeKey) GetValue(name string) (Value, error) {
	size, typ, err := n.k.GetValue(name, nil)
	if err != nil {
		return Value{}, fmt.Errorf("value %q: %w", name, mapErr(err))
	}
	if size == 0 {
		return Value{Type: typ}, nil
	}

	buf := make([]byte, size)
	read, typ, err := n.k.GetValue(name, buf)
	if err != nil {
		return Value{}, fmt.Errorf("read value %q: %w", name, mapErr(err))
	}
	return Value{Type: typ, Data: buf[:read]}, nil
}

// SetValue writes v.Data under name with type v.Type exactly as given, so
// REG_NONE, REG_LINK and strings with embedded NULs survive a round trip.
func (n nativeKey) SetValue(name string, v Value) error {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return fmt.Errorf("set %q: %w", name, err)
	}
	var data *byte
	if len(v.Data) > 0 {
		data = &v.Data[0]
	}
	ret, _, _ := procRegSetValueEx.Call(
		uintptr(n.k),
		uintptr(unsafe.Pointer(namePtr)),
		0,
		uintptr(v.Type),
		uintptr(unsafe.Pointer(data)),
		uintptr(len(v.Data)),
	)
	if ret != 0 {
		return fmt.Errorf("set %q: %w", name, mapErr(windows.Errno(ret)))
	}
	return nil
}

func (n nativeKey) DeleteValue(name string) error {
	if err := n.k.DeleteValue(name); err != nil {
		return fmt.Errorf("delete %q: %w", name, mapErr(err))
	}
	return nil
}

func (n nativeKey) Close() error {
	return n.k.Close()
}
