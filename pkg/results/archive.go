package results

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/matrix"
	"github.com/ngld/knossos/packages/buildmatrix/pkg/shell"
)

// DefaultLogPatterns selects Meson's log directory.
var DefaultLogPatterns = []string{"meson-logs/**"}

// Archive collects the build logs of failed cases into a .tar.xz file. The file is only created
// once the first case fails.
type Archive struct {
	Path     string
	Patterns []string

	file   *os.File
	xzw    *xz.Writer
	tw     *tar.Writer
	cases  int
	closed bool
}

// NewArchive prepares an archive at path. No patterns means DefaultLogPatterns.
func NewArchive(path string, patterns []string) *Archive {
	if len(patterns) == 0 {
		patterns = DefaultLogPatterns
	}

	return &Archive{Path: path, Patterns: patterns}
}

// Cases returns the number of cases whose logs were added.
func (a *Archive) Cases() int {
	return a.cases
}

func (a *Archive) open() error {
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o770); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", a.Path)
	}

	file, err := os.Create(a.Path)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", a.Path)
	}

	xzw, err := xz.NewWriter(file)
	if err != nil {
		file.Close()
		return eris.Wrap(err, "failed to initialize xz compression")
	}

	a.file = file
	a.xzw = xzw
	a.tw = tar.NewWriter(xzw)
	return nil
}

// Collect implements matrix.Collector. Matching files are stored as <case>/<relative path>.
func (a *Archive) Collect(ctx context.Context, c matrix.Case, result matrix.CaseResult, dir string) error {
	if a.closed {
		return eris.New("archive is already closed")
	}

	matches, err := shell.Glob(dir, a.Patterns)
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		zerolog.Ctx(ctx).Debug().Str("case", c.Name).Msg("no build logs to archive")
		return nil
	}

	if a.tw == nil {
		if err = a.open(); err != nil {
			return err
		}
	}

	added := 0
	for _, rel := range matches {
		ok, err := a.addFile(filepath.Join(dir, rel), c.Name+"/"+filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			added++
		}
	}

	if added > 0 {
		a.cases++
	}

	zerolog.Ctx(ctx).Debug().Str("case", c.Name).Int("files", added).Msg("archived build logs")
	return nil
}

// addFile stores a regular file. Anything else (directories, symlinks, sockets) is skipped.
func (a *Archive) addFile(path, name string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, eris.Wrapf(err, "failed to check %s", path)
	}

	if !info.Mode().IsRegular() {
		return false, nil
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return false, eris.Wrapf(err, "failed to build archive header for %s", path)
	}
	header.Name = name

	if err = a.tw.WriteHeader(header); err != nil {
		return false, eris.Wrapf(err, "failed to write archive header for %s", name)
	}

	handle, err := os.Open(path)
	if err != nil {
		return false, eris.Wrapf(err, "failed to open %s", path)
	}
	defer handle.Close()

	if _, err = io.Copy(a.tw, handle); err != nil {
		return false, eris.Wrapf(err, "failed to archive %s", path)
	}

	return true, nil
}

// Close finalises the archive. It returns the archive's path or an empty string if nothing was
// collected.
func (a *Archive) Close() (string, error) {
	if a.closed {
		return "", nil
	}
	a.closed = true

	if a.tw == nil {
		return "", nil
	}

	if err := a.tw.Close(); err != nil {
		a.file.Close()
		return "", eris.Wrap(err, "failed to finish tar stream")
	}

	if err := a.xzw.Close(); err != nil {
		a.file.Close()
		return "", eris.Wrap(err, "failed to finish xz stream")
	}

	if err := a.file.Close(); err != nil {
		return "", eris.Wrapf(err, "failed to close %s", a.Path)
	}

	return a.Path, nil
}
