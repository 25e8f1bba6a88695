package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	matrixcmd "github.com/ngld/knossos/packages/buildmatrix/pkg/matrix/cmd"
)

const testMatrix = `
cases:
  - name: good
    desc: plain build
  - name: bad
    flags: [--fail]
  - name: absent
    if: "false"
`

const testConfig = `
[builder]
setup = 'case "$1" in --fail) echo "bad flag [--fail]"; exit 1;; esac'
compile = "exit 0"
`

type testEnv struct {
	dir string
	out *bytes.Buffer
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "matrix.yml"), []byte(testMatrix), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "buildmatrix.toml"), []byte(testConfig), 0o644))

	return &testEnv{dir: dir, out: &bytes.Buffer{}}
}

func (e *testEnv) command(args ...string) *cobra.Command {
	root := newRootCmd(matrixcmd.NewRunCmd())
	root.SetOut(e.out)
	root.SetErr(e.out)
	root.SetArgs(append(args,
		"--config", filepath.Join(e.dir, "buildmatrix.toml"),
		"--file", filepath.Join(e.dir, "matrix.yml"),
		"--root", e.dir,
	))
	return root
}

func (e *testEnv) execute(args ...string) int {
	return execute(context.Background(), e.command(args...))
}

func TestExecute_MapsExitStatus_When_RunFinishes(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{name: "all selected cases pass", args: []string{"good", "absent"}, wantCode: 0, wantOut: "OK: 1 passed, 0 failed, 1 skipped"},
		{name: "a case fails", args: []string{}, wantCode: 1, wantOut: "FAILED: 1 passed, 1 failed, 1 skipped"},
		{name: "unknown case", args: []string{"nope"}, wantCode: 1, wantOut: "unknown case(s) nope"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupEnv(t)

			code := env.execute(tc.args...)

			assert.Equal(t, tc.wantCode, code)
			assert.Contains(t, env.out.String(), tc.wantOut)
		})
	}
}

func TestExecute_DoesNotPrintError_When_CasesFail(t *testing.T) {
	env := setupEnv(t)

	code := env.execute("bad")

	assert.Equal(t, 1, code)
	assert.Contains(t, env.out.String(), "bad flag [--fail]")
	assert.NotContains(t, env.out.String(), "case(s) failed")
}

func TestList_ShowsGuardStatus_When_Checking(t *testing.T) {
	env := setupEnv(t)

	code := env.execute("list", "--check")

	require.Equal(t, 0, code, env.out.String())
	out := env.out.String()
	assert.Contains(t, out, "good: plain build")
	assert.Contains(t, out, "# MATRIX_BUILD_DIR=")
	assert.Contains(t, out, "build-good")
	assert.Contains(t, out, `if shell("false"): does not hold, would be skipped`)
	assert.NotContains(t, out, "PASS")
	assert.NoDirExists(t, filepath.Join(env.dir, "build-good"))
}

func TestList_OmitsGuardStatus_When_NotChecking(t *testing.T) {
	env := setupEnv(t)

	code := env.execute("list", "absent")

	require.Equal(t, 0, code, env.out.String())
	assert.Contains(t, env.out.String(), `if shell("false")`)
	assert.NotContains(t, env.out.String(), "would be skipped")
	assert.NotContains(t, env.out.String(), "good")
}

func TestClean_RemovesWorkDirs_When_LeftBehind(t *testing.T) {
	env := setupEnv(t)

	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "build-good", "meson-logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "build-good", "meson-logs", "meson-log.txt"), []byte("log"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "build-bad"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "build-unrelated"), 0o755))

	code := env.execute("clean")

	require.Equal(t, 0, code, env.out.String())
	assert.NoDirExists(t, filepath.Join(env.dir, "build-good"))
	assert.NoDirExists(t, filepath.Join(env.dir, "build-bad"))
	assert.DirExists(t, filepath.Join(env.dir, "build-unrelated"))
	assert.FileExists(t, filepath.Join(env.dir, "matrix.yml"))
	assert.Contains(t, env.out.String(), "removing "+filepath.Join(env.dir, "build-good"))
	assert.NotContains(t, env.out.String(), "build-absent")
}

func TestClean_OnlyRemovesSelected_When_NamesGiven(t *testing.T) {
	env := setupEnv(t)

	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "build-good"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "build-bad"), 0o755))

	code := env.execute("clean", "bad")

	require.Equal(t, 0, code, env.out.String())
	assert.DirExists(t, filepath.Join(env.dir, "build-good"))
	assert.NoDirExists(t, filepath.Join(env.dir, "build-bad"))
}
