//go:build windows

package regstore

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"golang.org/x/sys/windows/registry"
)

func TestNativeSetValueKeepsRawType(t *testing.T) {
	path := fmt.Sprintf(`Software\sysview-test-%d`, os.Getpid())
	k, _, err := registry.CreateKey(registry.CURRENT_USER, path, registry.ALL_ACCESS)
	if err != nil {
		t.Skipf("cannot create test key: %v", err)
	}
	k.Close()
	t.Cleanup(func() { registry.DeleteKey(registry.CURRENT_USER, path) })

	key, err := NewNative().OpenKey(CurrentUser, path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer key.Close()

	embedded := append(EncodeUTF16("a"), 0, 0, 'b', 0, 0, 0)
	cases := map[string]Value{
		"none":     {Type: TypeNone, Data: []byte{1, 2, 3}},
		"link":     {Type: TypeLink, Data: EncodeUTF16(`\Registry\Machine\Software`)},
		"embedded": {Type: TypeSZ, Data: embedded},
		"empty":    {Type: TypeBinary},
	}
	for name, want := range cases {
		if err := key.SetValue(name, want); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
		got, err := key.GetValue(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if got.Type != want.Type || !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("%s: got %d %v, want %d %v", name, got.Type, got.Data, want.Type, want.Data)
		}
	}
}
