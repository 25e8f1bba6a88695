package builder

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/matrix"
)

func TestShell_PassesDirAndFlags_When_Configuring(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	work := t.TempDir()

	var stdout bytes.Buffer
	b := &Shell{
		SetupCmd:   `echo "$MATRIX_BUILD_DIR" "$#" "$@" "$EXTRA"`,
		CompileCmd: `echo compiled > "$MATRIX_BUILD_DIR/out.txt"`,
		Dir:        src,
		Env:        map[string]string{"EXTRA": "extra"},
		Stdout:     &stdout,
	}

	code, err := b.Configure(context.Background(), work, []string{"-Da=1", "-Db=two words"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, work+" 2 -Da=1 -Db=two words extra\n", stdout.String())

	code, err = b.Compile(context.Background(), work)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	content, err := os.ReadFile(filepath.Join(work, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "compiled\n", string(content))
}

func TestShell_ReturnsExitStatus_When_StepFails(t *testing.T) {
	t.Parallel()

	b := &Shell{SetupCmd: "exit 3", CompileCmd: "false", Dir: t.TempDir()}

	code, err := b.Configure(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	code, err = b.Compile(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestShell_ResolvesRelativeBuildDir_When_Configuring(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	b := &Shell{SetupCmd: `echo "$MATRIX_BUILD_DIR"`, Dir: t.TempDir(), Stdout: &stdout}

	_, err := b.Configure(context.Background(), "build-x", nil)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "build-x")+"\n", stdout.String())
}

func TestShell_Validate_When_TemplatesGiven(t *testing.T) {
	t.Parallel()

	assert.NoError(t, New().Validate())
	assert.NoError(t, (&Shell{}).Validate())
	assert.Error(t, (&Shell{SetupCmd: "if then"}).Validate())
	assert.Error(t, (&Shell{CompileCmd: "(("}).Validate())
}

func TestShell_Commands_When_Rendering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		builder *Shell
		dir     string
		flags   []string
		want    []string
	}{
		{
			name:    "defaults",
			builder: New(),
			dir:     "build-lib-static",
			flags:   []string{"-Ddefault_library=static"},
			want: []string{
				"meson setup build-lib-static -Ddefault_library=static",
				"meson compile -C build-lib-static",
			},
		},
		{
			name:    "quoted flags",
			builder: New(),
			dir:     "build-x",
			flags:   []string{"-Dc_args=-O2 -g"},
			want: []string{
				"meson setup build-x '-Dc_args=-O2 -g'",
				"meson compile -C build-x",
			},
		},
		{
			name:    "custom",
			builder: &Shell{SetupCmd: `cmake -B "$MATRIX_BUILD_DIR" "$@"`, CompileCmd: `cmake --build "$MATRIX_BUILD_DIR"`},
			dir:     "build-y",
			flags:   []string{"-DX=1"},
			want: []string{
				`cmake -B "$MATRIX_BUILD_DIR" "$@" # MATRIX_BUILD_DIR=build-y -DX=1`,
				`cmake --build "$MATRIX_BUILD_DIR" # MATRIX_BUILD_DIR=build-y`,
			},
		},
		{
			name:    "custom without flags",
			builder: &Shell{SetupCmd: `cmake -B "$MATRIX_BUILD_DIR"`, CompileCmd: `cmake --build "$MATRIX_BUILD_DIR"`},
			dir:     "build-z",
			flags:   []string{},
			want: []string{
				`cmake -B "$MATRIX_BUILD_DIR" # MATRIX_BUILD_DIR=build-z`,
				`cmake --build "$MATRIX_BUILD_DIR" # MATRIX_BUILD_DIR=build-z`,
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.builder.Commands(tc.dir, tc.flags))
		})
	}
}

func TestShell_PassesCases_When_DrivenByRunner(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	logger := zerolog.New(io.Discard).Level(zerolog.DebugLevel)
	ctx := matrix.WithLogger(context.Background(), &logger)

	runner := &matrix.Runner{
		Builder: &Shell{SetupCmd: "exit 0", CompileCmd: "exit 0", Dir: t.TempDir()},
		Root:    root,
	}

	summary, err := runner.Run(ctx, []matrix.Case{
		{Name: "withflags", Flags: []string{"-Da=1"}},
		{Name: "noflags", Flags: []string{}},
		{Name: "nilflags"},
	})

	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	for _, result := range summary.Results {
		assert.Equal(t, matrix.Passed, result.Outcome, result.Name)
		assert.Equal(t, 0, result.ExitCode, result.Name)
		assert.NoError(t, result.Err, result.Name)
	}
	assert.True(t, summary.OK())
	assert.Equal(t, 0, summary.ExitCode())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
