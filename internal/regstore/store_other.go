//go:build !windows

package regstore

import "fmt"

// Native reports ErrUnsupported for every open outside Windows.
type Native struct{}

// NewNative returns the live registry store.
func NewNative() Store {
	return Native{}
}

// OpenKey implements Store.
func (Native) OpenKey(hive Hive, path string, _ bool) (Key, error) {
	return nil, fmt.Errorf("open %s\\%s: %w", hive, path, ErrUnsupported)
}
