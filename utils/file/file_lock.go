// Package file provides utilities for file operations, including file locking
// and the append-only open used by every recording destination.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

var (
	// ErrLocked is returned when another process already holds the lock.
	ErrLocked = errors.New("file already locked")
	// ErrNotLocked is returned by Unlock on a lock that was never acquired.
	ErrNotLocked = errors.New("file not locked")

	_fileMode fs.FileMode = 0o600
	_dataMode fs.FileMode = 0o644
	_dirMode  fs.FileMode = 0o755
)

// FileLock represents an advisory flock on a file.
// A recording session holds one on its directory so two recorders never share it.
type FileLock struct {
	Path string   // Path is the path to the lock file.
	File *os.File // File is the handle that carries the lock while held.
}

// NewFileLock creates a new FileLock instance for the given path.
func NewFileLock(p string) *FileLock {
	return &FileLock{
		Path: p,
	}
}

// IsLock reports whether the file is currently locked by someone else.
// The probe lock is released before returning.
func IsLock(p string) bool {
	fl := NewFileLock(p)
	if err := fl.Lock(); err != nil {
		return true
	}
	_ = fl.Unlock()
	return false
}

// Lock acquires an exclusive lock on the file, creating it if needed.
// It never blocks: ErrLocked is returned when the lock is held elsewhere.
func (l *FileLock) Lock() error {
	f, err := os.OpenFile(l.Path, os.O_RDWR|os.O_CREATE, _fileMode)
	if err != nil {
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if err2 := f.Close(); err2 != nil {
			return errors.Join(fmt.Errorf("%w: %s", ErrLocked, l.Path), err2)
		}
		return fmt.Errorf("%w: %s", ErrLocked, l.Path)
	}
	l.File = f
	return nil
}

// Unlock releases the lock and closes the handle.
func (l *FileLock) Unlock() error {
	if l.File == nil {
		return ErrNotLocked
	}
	defer func() {
		_ = l.File.Close()
		l.File = nil
	}()
	return syscall.Flock(int(l.File.Fd()), syscall.LOCK_UN)
}

// OpenAppend opens filePath for appending, creating it and its parent
// directories when missing. Existing content is never truncated.
func OpenAppend(filePath string) (*os.File, error) {
	if filePath == "" {
		return nil, errors.New("filename is empty")
	}
	if dir := filepath.Dir(filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, _dirMode); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	fd, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, _dataMode)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return fd, nil
}
