package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// RotatingWriter is a size-based log file rotator, safe for concurrent use.
type RotatingWriter struct {
	mu         sync.Mutex
	fs         afero.Fs
	file       afero.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
}

// NewRotatingWriter opens filePath on the OS filesystem and rotates it once
// maxSizeMB is exceeded, keeping maxBackups old files.
func NewRotatingWriter(filePath string, maxSizeMB int, maxBackups int) (*RotatingWriter, error) {
	return NewRotatingWriterFs(afero.NewOsFs(), filePath, maxSizeMB, maxBackups)
}

// NewRotatingWriterFs is NewRotatingWriter on fs.
func NewRotatingWriterFs(fs afero.Fs, filePath string, maxSizeMB int, maxBackups int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	if err := fs.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rw := &RotatingWriter{
		fs:         fs,
		filePath:   filePath,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := rw.openFile(); err != nil {
		return nil, err
	}
	return rw, nil
}

// Write implements io.Writer, rotating first when p would overflow the file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.written > 0 && rw.written+int64(len(p)) > rw.maxSize {
		if rw.file != nil {
			rw.file.Close()
			rw.file = nil
		}
		ShiftBackups(rw.fs, rw.filePath, rw.maxBackups)
		if err := rw.openFile(); err != nil {
			return 0, fmt.Errorf("log rotation: %w", err)
		}
	}
	if rw.file == nil {
		return 0, os.ErrClosed
	}

	n, err := rw.file.Write(p)
	rw.written += int64(n)
	return n, err
}

// Close closes the underlying file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

// TeeWriter returns an io.Writer that writes to both w1 and w2.
func TeeWriter(w1, w2 io.Writer) io.Writer {
	return io.MultiWriter(w1, w2)
}

func (rw *RotatingWriter) openFile() error {
	f, err := rw.fs.OpenFile(rw.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	rw.file = f
	rw.written = info.Size()
	return nil
}

// ShiftBackups moves path.N-1 to path.N, dropping the oldest, then path to
// path.1. The caller must have closed path: Windows refuses to rename an
// open file. Failures are logged and the shift carries on.
func ShiftBackups(fs afero.Fs, path string, maxBackups int) {
	if maxBackups < 1 {
		maxBackups = 1
	}
	l := L("rotation")

	oldest := BackupName(path, maxBackups)
	if err := fs.Remove(oldest); err != nil && !os.IsNotExist(err) {
		l.Warn("failed to remove oldest backup", KeyPath, oldest, KeyError, err)
	}
	for i := maxBackups; i >= 1; i-- {
		src, dst := BackupName(path, i-1), BackupName(path, i)
		if err := fs.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			l.Warn("failed to rename backup", "src", src, "dst", dst, KeyError, err)
		}
	}
}

// BackupName returns path for index 0 and path.index otherwise.
func BackupName(path string, index int) string {
	if index == 0 {
		return path
	}
	return fmt.Sprintf("%s.%d", path, index)
}
