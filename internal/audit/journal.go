// Package audit keeps a tamper-evident journal of the changes sysview makes
// to the machine: launched uninstallers and toggled startup entries.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/sysview/sysview/internal/logging"
)

var log = logging.L("audit")

// Actions recorded in the journal.
const (
	ActionUninstallLaunched = "uninstall_launched"
	ActionLocationOpened    = "location_opened"
	ActionStartupEnabled    = "startup_enabled"
	ActionStartupDisabled   = "startup_disabled"
	ActionServeStart        = "serve_start"
	ActionServeStop         = "serve_stop"
	ActionLogRotated        = "log_rotated"
)

// Machine changes are synced to disk before Record returns.
var syncedActions = map[string]bool{
	ActionStartupEnabled:  true,
	ActionStartupDisabled: true,
}

const genesisHash = "genesis"

// ErrChainBroken is returned by Verify when an entry does not hash or link
// correctly.
var ErrChainBroken = errors.New("audit: hash chain broken")

// Entry is a single journal record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Journal appends JSONL entries linked by a SHA-256 hash chain. A rotated
// file starts with an ActionLogRotated entry linking to the last entry of
// the previous file.
type Journal struct {
	mu         sync.Mutex
	fs         afero.Fs
	file       afero.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// Open opens or creates the journal at path and resumes its hash chain.
func Open(path string, maxSizeMB, maxBackups int) (*Journal, error) {
	return OpenFs(afero.NewOsFs(), path, maxSizeMB, maxBackups)
}

// OpenFs is Open on fs.
func OpenFs(fs afero.Fs, path string, maxSizeMB, maxBackups int) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	j := &Journal{
		fs:         fs,
		filePath:   path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		prevHash:   lastHash(fs, path),
	}
	if err := j.openFile(); err != nil {
		return nil, err
	}

	log.Debug("action journal opened", logging.KeyPath, path)
	return j, nil
}

// Record appends an entry. The chain only advances after a successful
// write. Safe to call on a nil receiver (no-op).
func (j *Journal) Record(action, target string, details map[string]any) {
	if j == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		j.dropped.Add(1)
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		Target:    target,
		Details:   details,
		PrevHash:  j.prevHash,
	}

	data, err := seal(&entry)
	if err != nil {
		log.Error("failed to encode journal entry", logging.KeyError, err, "action", action)
		j.dropped.Add(1)
		return
	}

	if j.written > 0 && j.written+int64(len(data)) > j.maxSize {
		if err := j.rotate(); err != nil {
			log.Error("journal rotation failed", logging.KeyError, err)
			j.dropped.Add(1)
			return
		}
		// The sentinel moved the chain; re-seal against it.
		entry.PrevHash = j.prevHash
		if data, err = seal(&entry); err != nil {
			j.dropped.Add(1)
			return
		}
	}

	n, err := j.file.Write(data)
	if err != nil {
		log.Error("failed to write journal entry", logging.KeyError, err, "action", action)
		j.dropped.Add(1)
		return
	}
	j.written += int64(n)
	j.prevHash = entry.EntryHash

	if syncedActions[action] {
		if err := j.file.Sync(); err != nil {
			log.Warn("failed to sync journal entry", logging.KeyError, err, "action", action)
		}
	}
}

// Close closes the journal file. Safe to call on a nil receiver.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}

// DroppedCount returns the number of entries that failed to write, or -1
// for a nil journal.
func (j *Journal) DroppedCount() int64 {
	if j == nil {
		return -1
	}
	return j.dropped.Load()
}

// Path returns the live journal file.
func (j *Journal) Path() string {
	return j.filePath
}

// seal computes the entry hash and returns the encoded line.
func seal(entry *Entry) ([]byte, error) {
	hash, err := computeHash(*entry)
	if err != nil {
		return nil, err
	}
	entry.EntryHash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// computeHash length-prefixes each field so distinct field splits cannot
// produce the same input.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.Action, entry.Target, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// lastHash returns the hash of the last readable entry in path, or the
// genesis marker for a new or empty journal.
func lastHash(fs afero.Fs, path string) string {
	f, err := fs.Open(path)
	if err != nil {
		return genesisHash
	}
	defer f.Close()

	last := genesisHash
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if json.Unmarshal(scanner.Bytes(), &e) == nil && e.EntryHash != "" {
			last = e.EntryHash
		}
	}
	return last
}

// Verify reads a journal and checks every entry's hash and link. The first
// entry may link to anything, since it may continue a rotated file. It
// returns the number of valid entries read.
func Verify(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	count := 0
	prev := ""
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return count, fmt.Errorf("line %d: %w: %v", line, ErrChainBroken, err)
		}
		want, err := computeHash(e)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if want != e.EntryHash {
			return count, fmt.Errorf("line %d: %w: entry hash mismatch", line, ErrChainBroken)
		}
		if count > 0 && e.PrevHash != prev {
			return count, fmt.Errorf("line %d: %w: does not link to previous entry", line, ErrChainBroken)
		}
		prev = e.EntryHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}

func (j *Journal) openFile() error {
	f, err := j.fs.OpenFile(j.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat journal: %w", err)
	}

	j.file = f
	j.written = info.Size()
	return nil
}

func (j *Journal) rotate() error {
	if j.file != nil {
		j.file.Close()
		j.file = nil
	}

	logging.ShiftBackups(j.fs, j.filePath, j.maxBackups)

	if err := j.openFile(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    ActionLogRotated,
		PrevHash:  j.prevHash,
		Details:   map[string]any{"previousFile": logging.BackupName(j.filePath, 1)},
	}
	data, err := seal(&sentinel)
	if err == nil {
		var n int
		n, err = j.file.Write(data)
		j.written += int64(n)
	}
	if err != nil {
		log.Error("rotation sentinel failed, hash chain broken", logging.KeyError, err)
		j.dropped.Add(1)
		j.prevHash = "chain-broken"
		return nil
	}
	j.prevHash = sentinel.EntryHash
	return nil
}
