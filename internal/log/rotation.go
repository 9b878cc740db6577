package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Rotation defaults for server and audit logs.
const (
	DefaultMaxSize    = 10 << 20
	DefaultMaxBackups = 5
)

// RotatingFile is an io.WriteCloser over a log file that is rotated once it
// would grow past MaxSize. Old files are kept as path.1 (newest) through
// path.N.
type RotatingFile struct {
	mu sync.Mutex

	path       string
	maxSize    int64
	maxBackups int

	file      *os.File
	size      int64
	rotations int
}

// NewRotatingFile opens path for appending. maxSize is in bytes and
// maxBackups is the number of rotated files kept; zero values select
// DefaultMaxSize and DefaultMaxBackups.
func NewRotatingFile(path string, maxSize int64, maxBackups int) (*RotatingFile, error) {
	if path == "" {
		return nil, errors.New("log file path is required")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	rf := &RotatingFile{
		path:       path,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(rf.path), 0o750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	// Audit records name principals; keep the file owner-only.
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

// Write appends p, rotating first if p would push the file past its limit.
// A single record larger than the limit is still written whole.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.size > 0 && rf.size+int64(len(p)) > rf.maxSize {
		if err := rf.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Rotations returns how many times the file has been rotated.
func (rf *RotatingFile) Rotations() int {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.rotations
}

func (rf *RotatingFile) backup(i int) string {
	return fmt.Sprintf("%s.%d", rf.path, i)
}

// rotate shifts path.N-1 .. path.1 up by one, drops path.N, moves the live
// file to path.1 and reopens. Must be called with mu held.
func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}
	rf.file = nil

	if err := os.Remove(rf.backup(rf.maxBackups)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove oldest backup: %w", err)
	}
	for i := rf.maxBackups - 1; i >= 1; i-- {
		if err := os.Rename(rf.backup(i), rf.backup(i+1)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("shift backup %d: %w", i, err)
		}
	}
	if err := os.Rename(rf.path, rf.backup(1)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("move current log: %w", err)
	}
	rf.rotations++
	return rf.open()
}

// Close implements io.Closer.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}
