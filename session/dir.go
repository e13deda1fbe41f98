package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DirLayout is the session directory name, the local start time.
const DirLayout = "2006-01-02T15:04:05"

const _dirMode fs.FileMode = 0o755

// createDir makes a fresh session directory under root named after now. An
// existing directory is never reused: a short unique suffix is added instead.
func createDir(root string, now time.Time) (string, error) {
	if err := os.MkdirAll(root, _dirMode); err != nil {
		return "", fmt.Errorf("create root %s: %w", root, err)
	}
	name := now.Format(DirLayout)
	dir := filepath.Join(root, name)
	for i := 0; i < 8; i++ {
		err := os.Mkdir(dir, _dirMode)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create session dir: %w", err)
		}
		dir = filepath.Join(root, name+"-"+uuid.NewString()[:8])
	}
	return "", fmt.Errorf("create session dir under %s: too many collisions", root)
}
