// Package regstore is a narrow view of the Windows registry: open a key in a
// hive, list its subkeys and values, and move raw values around. The native
// implementation lives in store_windows.go; Memory backs tests and non-Windows
// builds.
package regstore

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Hive identifies a registry root.
type Hive int

const (
	CurrentUser Hive = iota + 1
	LocalMachine
)

// String returns the short hive name used in locations and keys.
func (h Hive) String() string {
	switch h {
	case CurrentUser:
		return "HKCU"
	case LocalMachine:
		return "HKLM"
	default:
		return fmt.Sprintf("Hive(%d)", int(h))
	}
}

// ParseHive accepts the short and long spellings of the supported hives.
func ParseHive(s string) (Hive, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HKCU", "HKEY_CURRENT_USER", "CURRENTUSER":
		return CurrentUser, nil
	case "HKLM", "HKEY_LOCAL_MACHINE", "LOCALMACHINE":
		return LocalMachine, nil
	default:
		return 0, fmt.Errorf("unknown registry hive: %s", s)
	}
}

// Value types, numerically equal to the REG_* constants.
const (
	TypeNone     uint32 = 0
	TypeSZ       uint32 = 1
	TypeExpandSZ uint32 = 2
	TypeBinary   uint32 = 3
	TypeDWord    uint32 = 4
	TypeLink     uint32 = 6
	TypeMultiSZ  uint32 = 7
	TypeQWord    uint32 = 11
)

var (
	// ErrNotExist is returned when a key or value is absent.
	ErrNotExist = errors.New("registry: not found")
	// ErrAccessDenied is returned when the key cannot be opened with the
	// requested rights.
	ErrAccessDenied = errors.New("registry: access denied")
	// ErrUnsupported is returned by the native store on non-Windows builds.
	ErrUnsupported = errors.New("registry: unsupported on this platform")
)

// Value is a raw registry value: its REG_* type and stored bytes.
type Value struct {
	Type uint32
	Data []byte
}

// String decodes SZ and EXPAND_SZ data. Other types return ok=false.
func (v Value) String() (s string, ok bool) {
	if v.Type != TypeSZ && v.Type != TypeExpandSZ {
		return "", false
	}
	return DecodeUTF16(v.Data), true
}

// StringValue encodes s as a NUL-terminated REG_SZ value.
func StringValue(s string) Value {
	return Value{Type: TypeSZ, Data: EncodeUTF16(s)}
}

// Key is an open registry key. Callers must Close it.
type Key interface {
	SubKeyNames() ([]string, error)
	ValueNames() ([]string, error)
	// GetString returns a string value; ErrNotExist when absent and an error
	// when the value is not a string type.
	GetString(name string) (string, error)
	// GetInteger returns a DWORD or QWORD value.
	GetInteger(name string) (uint64, error)
	GetValue(name string) (Value, error)
	SetValue(name string, v Value) error
	DeleteValue(name string) error
	Close() error
}

// Store opens keys.
type Store interface {
	// OpenKey opens hive\path. write requests query+set rights; the 64-bit
	// registry view is always used so WOW6432Node paths are addressed
	// explicitly.
	OpenKey(hive Hive, path string, write bool) (Key, error)
}

// DecodeUTF16 converts little-endian UTF-16 bytes to a string, dropping
// trailing NULs.
func DecodeUTF16(buf []byte) string {
	if len(buf) < 2 {
		return ""
	}
	if len(buf)%2 != 0 {
		buf = buf[:len(buf)-1]
	}

	u16 := make([]uint16, 0, len(buf)/2)
	for i := 0; i < len(buf); i += 2 {
		u16 = append(u16, uint16(buf[i])|uint16(buf[i+1])<<8)
	}
	for len(u16) > 0 && u16[len(u16)-1] == 0 {
		u16 = u16[:len(u16)-1]
	}
	return string(utf16.Decode(u16))
}

// EncodeUTF16 converts s to NUL-terminated little-endian UTF-16 bytes.
func EncodeUTF16(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	buf := make([]byte, 0, (len(u16)+1)*2)
	for _, c := range u16 {
		buf = append(buf, byte(c), byte(c>>8))
	}
	return append(buf, 0, 0)
}
