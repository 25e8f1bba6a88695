package matrix

import (
	"fmt"
	"os"
)

var removeAll = os.RemoveAll

// workDir is a case-local directory which only lives as long as the case runs.
type workDir struct {
	path string
}

// acquireWorkDir removes whatever is left at path from an earlier run and creates a fresh,
// empty directory in its place.
func acquireWorkDir(path string) (*workDir, error) {
	if err := removeAll(path); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to remove stale working directory %s", path), Err: err}
	}

	if err := os.MkdirAll(path, 0o770); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to create working directory %s", path), Err: err}
	}

	return &workDir{path: path}, nil
}

func (w *workDir) release() error {
	if err := removeAll(w.path); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("failed to remove working directory %s", w.path), Err: err}
	}
	return nil
}
