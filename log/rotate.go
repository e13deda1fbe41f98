package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linchenxuan/taglog/utils/file"
)

// rotateIfNeeded returns the descriptor to write to next. Once the file
// reaches splitMB it is closed, renamed with a timestamp suffix and reopened
// empty. A file removed from under the logger is recreated.
func rotateIfNeeded(filePath string, splitMB int, fd *os.File) (*os.File, error) {
	fi, err := os.Stat(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat file: %w", err)
		}
		if fd != nil {
			_ = fd.Close()
		}
		return openLogFile(filePath)
	}

	if !shouldRotateBySize(fi.Size(), splitMB) {
		return fd, nil
	}
	if err := moveLogFile(fd, filePath, time.Now()); err != nil {
		return nil, fmt.Errorf("move log file by size: %w", err)
	}
	return openLogFile(filePath)
}

func shouldRotateBySize(size int64, splitMB int) bool {
	if splitMB <= 0 {
		return false
	}
	return size >= int64(splitMB)<<20
}

func moveLogFile(oldFD *os.File, filePath string, now time.Time) error {
	if oldFD != nil {
		if err := oldFD.Close(); err != nil {
			return fmt.Errorf("close old file: %w", err)
		}
	}
	newFilePath, err := generateBackupFileName(filePath, now)
	if err != nil {
		return fmt.Errorf("generate backup filename: %w", err)
	}
	if err := os.Rename(filePath, newFilePath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// generateBackupFileName appends a YYYYMMDD-HHMMSS suffix, stepping one
// second forward on collision.
func generateBackupFileName(filePath string, now time.Time) (string, error) {
	ext := filepath.Ext(filePath)
	baseName := strings.TrimSuffix(filePath, ext)

	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		candidate := baseName + ext + "." + ts.Format("20060102-150405")
		if _, err := os.Stat(candidate); err != nil {
			if os.IsNotExist(err) {
				return candidate, nil
			}
			return "", fmt.Errorf("stat file: %w", err)
		}
	}
	return "", errors.New("cannot generate unique backup filename")
}

func openLogFile(filePath string) (*os.File, error) {
	fd, err := file.OpenAppend(filePath)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return fd, nil
}
