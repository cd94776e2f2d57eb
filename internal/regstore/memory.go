package regstore

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memPath struct {
	hive Hive
	path string // lower-cased, backslash separated
}

type memValue struct {
	name  string
	value Value
}

type memKey struct {
	path   string // original case
	values []memValue
}

func (k *memKey) find(name string) int {
	for i, v := range k.values {
		if strings.EqualFold(v.name, name) {
			return i
		}
	}
	return -1
}

// Memory is an in-process registry. Names are case-insensitive and value
// order is insertion order, as with the native registry.
type Memory struct {
	mu       sync.Mutex
	keys     map[memPath]*memKey
	denied   map[memPath]bool
	readOnly map[Hive]bool
}

// NewMemory returns an empty registry.
func NewMemory() *Memory {
	return &Memory{
		keys:     make(map[memPath]*memKey),
		denied:   make(map[memPath]bool),
		readOnly: make(map[Hive]bool),
	}
}

func normalizePath(path string) string {
	path = strings.Trim(strings.ReplaceAll(path, "/", `\`), `\`)
	return strings.ToLower(path)
}

// CreateKey creates hive\path and any missing parents.
func (m *Memory) CreateKey(hive Hive, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createLocked(hive, path)
}

func (m *Memory) createLocked(hive Hive, path string) *memKey {
	clean := strings.Trim(strings.ReplaceAll(path, "/", `\`), `\`)
	parts := strings.Split(clean, `\`)
	var key *memKey
	for i := range parts {
		p := strings.Join(parts[:i+1], `\`)
		mp := memPath{hive, strings.ToLower(p)}
		k, ok := m.keys[mp]
		if !ok {
			k = &memKey{path: p}
			m.keys[mp] = k
		}
		key = k
	}
	return key
}

// Set stores a raw value, creating the key if needed.
func (m *Memory) Set(hive Hive, path, name string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.createLocked(hive, path)
	setLocked(k, name, v)
}

// SetString stores a REG_SZ value, creating the key if needed.
func (m *Memory) SetString(hive Hive, path, name, data string) {
	m.Set(hive, path, name, StringValue(data))
}

// SetDWord stores a REG_DWORD value, creating the key if needed.
func (m *Memory) SetDWord(hive Hive, path, name string, data uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, data)
	m.Set(hive, path, name, Value{Type: TypeDWord, Data: buf})
}

// Get returns a copy of a stored value.
func (m *Memory) Get(hive Hive, path, name string) (Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[memPath{hive, normalizePath(path)}]
	if !ok {
		return Value{}, false
	}
	i := k.find(name)
	if i < 0 {
		return Value{}, false
	}
	return copyValue(k.values[i].value), true
}

// Deny makes every open of hive\path fail with ErrAccessDenied.
func (m *Memory) Deny(hive Hive, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[memPath{hive, normalizePath(path)}] = true
}

// SetReadOnly makes write opens in hive fail with ErrAccessDenied, the way
// HKLM behaves for an unelevated process.
func (m *Memory) SetReadOnly(hive Hive, readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly[hive] = readOnly
}

// OpenKey implements Store.
func (m *Memory) OpenKey(hive Hive, path string, write bool) (Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mp := memPath{hive, normalizePath(path)}
	if m.denied[mp] || (write && m.readOnly[hive]) {
		return nil, fmt.Errorf("open %s\\%s: %w", hive, path, ErrAccessDenied)
	}
	if _, ok := m.keys[mp]; !ok {
		return nil, fmt.Errorf("open %s\\%s: %w", hive, path, ErrNotExist)
	}
	return &memHandle{m: m, at: mp, write: write}, nil
}

func setLocked(k *memKey, name string, v Value) {
	v = copyValue(v)
	if i := k.find(name); i >= 0 {
		k.values[i].value = v
		return
	}
	k.values = append(k.values, memValue{name: name, value: v})
}

func copyValue(v Value) Value {
	data := make([]byte, len(v.Data))
	copy(data, v.Data)
	return Value{Type: v.Type, Data: data}
}

type memHandle struct {
	m      *Memory
	at     memPath
	write  bool
	closed bool
}

func (h *memHandle) key() (*memKey, error) {
	if h.closed {
		return nil, fmt.Errorf("registry key %s\\%s is closed", h.at.hive, h.at.path)
	}
	k, ok := h.m.keys[h.at]
	if !ok {
		return nil, ErrNotExist
	}
	return k, nil
}

func (h *memHandle) SubKeyNames() ([]string, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if _, err := h.key(); err != nil {
		return nil, err
	}

	prefix := h.at.path + `\`
	var names []string
	for mp, k := range h.m.keys {
		if mp.hive != h.at.hive || !strings.HasPrefix(mp.path, prefix) {
			continue
		}
		rest := mp.path[len(prefix):]
		if rest == "" || strings.Contains(rest, `\`) {
			continue
		}
		names = append(names, k.path[strings.LastIndex(k.path, `\`)+1:])
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}

func (h *memHandle) ValueNames() ([]string, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	k, err := h.key()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(k.values))
	for _, v := range k.values {
		names = append(names, v.name)
	}
	return names, nil
}

func (h *memHandle) GetValue(name string) (Value, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	k, err := h.key()
	if err != nil {
		return Value{}, err
	}
	i := k.find(name)
	if i < 0 {
		return Value{}, fmt.Errorf("value %q: %w", name, ErrNotExist)
	}
	return copyValue(k.values[i].value), nil
}

func (h *memHandle) GetString(name string) (string, error) {
	v, err := h.GetValue(name)
	if err != nil {
		return "", err
	}
	s, ok := v.String()
	if !ok {
		return "", fmt.Errorf("value %q has type %d, want string", name, v.Type)
	}
	return s, nil
}

func (h *memHandle) GetInteger(name string) (uint64, error) {
	v, err := h.GetValue(name)
	if err != nil {
		return 0, err
	}
	switch {
	case v.Type == TypeDWord && len(v.Data) >= 4:
		return uint64(binary.LittleEndian.Uint32(v.Data)), nil
	case v.Type == TypeQWord && len(v.Data) >= 8:
		return binary.LittleEndian.Uint64(v.Data), nil
	default:
		return 0, fmt.Errorf("value %q has type %d, want integer", name, v.Type)
	}
}

func (h *memHandle) SetValue(name string, v Value) error {
	if !h.write {
		return fmt.Errorf("set %q: %w", name, ErrAccessDenied)
	}
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	k, err := h.key()
	if err != nil {
		return err
	}
	setLocked(k, name, v)
	return nil
}

func (h *memHandle) DeleteValue(name string) error {
	if !h.write {
		return fmt.Errorf("delete %q: %w", name, ErrAccessDenied)
	}
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	k, err := h.key()
	if err != nil {
		return err
	}
	i := k.find(name)
	if i < 0 {
		return fmt.Errorf("value %q: %w", name, ErrNotExist)
	}
	k.values = append(k.values[:i], k.values[i+1:]...)
	return nil
}

func (h *memHandle) Close() error {
	h.closed = true
	return nil
}
