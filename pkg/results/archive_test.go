package results

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/matrix"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	reader, err := xz.NewReader(f)
	require.NoError(t, err)

	result := make(map[string]string)
	archive := tar.NewReader(reader)
	for {
		item, err := archive.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		content, err := io.ReadAll(archive)
		require.NoError(t, err)
		result[item.Name] = string(content)
	}
	return result
}

func TestArchive_StoresLogsPerCase_When_CasesFail(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	writeFiles(t, first, map[string]string{
		"meson-logs/meson-log.txt": "first log",
		"meson-logs/nested/x.txt":  "nested",
		"build.ninja":              "not a log",
	})
	second := t.TempDir()
	writeFiles(t, second, map[string]string{"meson-logs/meson-log.txt": "second log"})

	path := filepath.Join(t.TempDir(), "logs.tar.xz")
	archive := NewArchive(path, nil)
	failed := matrix.CaseResult{Outcome: matrix.ConfigureFailed, ExitCode: 1}

	require.NoError(t, archive.Collect(context.Background(), matrix.Case{Name: "first"}, failed, first))
	require.NoError(t, archive.Collect(context.Background(), matrix.Case{Name: "second"}, failed, second))
	assert.Equal(t, 2, archive.Cases())

	written, err := archive.Close()
	require.NoError(t, err)
	assert.Equal(t, path, written)

	content := readArchive(t, path)
	names := make([]string, 0, len(content))
	for name := range content {
		names = append(names, name)
	}
	sort.Strings(names)

	assert.Equal(t, []string{"first/meson-logs/meson-log.txt", "first/meson-logs/nested/x.txt", "second/meson-logs/meson-log.txt"}, names)
	assert.Equal(t, "first log", content["first/meson-logs/meson-log.txt"])
	assert.Equal(t, "second log", content["second/meson-logs/meson-log.txt"])
}

func TestArchive_CreatesNoFile_When_NothingCollected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs.tar.xz")
	archive := NewArchive(path, []string{"meson-logs/*"})

	require.NoError(t, archive.Collect(context.Background(), matrix.Case{Name: "x"}, matrix.CaseResult{Outcome: matrix.CompileFailed}, t.TempDir()))

	written, err := archive.Close()
	require.NoError(t, err)
	assert.Empty(t, written)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_ReturnsError_When_Closed(t *testing.T) {
	t.Parallel()

	archive := NewArchive(filepath.Join(t.TempDir(), "logs.tar.xz"), nil)
	_, err := archive.Close()
	require.NoError(t, err)

	err = archive.Collect(context.Background(), matrix.Case{Name: "x"}, matrix.CaseResult{}, t.TempDir())
	assert.Error(t, err)
}
