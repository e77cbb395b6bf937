package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirCredentials keeps each line's credential artifacts in its own
// subdirectory under root.
type DirCredentials struct {
	root string
}

func NewDirCredentials(root string) (*DirCredentials, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating credentials dir: %w", err)
	}
	return &DirCredentials{root: root}, nil
}

func (d *DirCredentials) Purge(lineID string) error {
	return os.RemoveAll(d.dir(lineID))
}

func (d *DirCredentials) Exists(lineID string) bool {
	info, err := os.Stat(d.dir(lineID))
	return err == nil && info.IsDir()
}

func (d *DirCredentials) dir(lineID string) string {
	// Line IDs may carry separators that are unsafe as directory names.
	safe := strings.ReplaceAll(lineID, string(os.PathSeparator), "_")
	return filepath.Join(d.root, safe)
}
