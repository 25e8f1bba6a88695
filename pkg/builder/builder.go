// Package builder implements matrix.Builder on top of shell command templates.
package builder

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/shell"
)

const (
	// DefaultSetup configures a Meson build directory.
	DefaultSetup = `meson setup "$MATRIX_BUILD_DIR" "$@"`
	// DefaultCompile builds a configured Meson build directory.
	DefaultCompile = `meson compile -C "$MATRIX_BUILD_DIR"`

	// BuildDirVar holds the case's working directory inside both templates.
	BuildDirVar = "MATRIX_BUILD_DIR"
)

// Shell runs the configure and compile steps as shell scripts. The case flags are passed to the
// setup template as positional parameters.
type Shell struct {
	SetupCmd   string
	CompileCmd string
	// Dir is the source directory the templates run in. Defaults to the current directory.
	Dir    string
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a builder using the Meson defaults.
func New() *Shell {
	return &Shell{
		SetupCmd:   DefaultSetup,
		CompileCmd: DefaultCompile,
	}
}

// Validate makes sure both templates parse.
func (s *Shell) Validate() error {
	if _, err := shell.Parse("setup", s.setupTemplate()); err != nil {
		return eris.Wrap(err, "invalid setup command")
	}

	if _, err := shell.Parse("compile", s.compileTemplate()); err != nil {
		return eris.Wrap(err, "invalid compile command")
	}

	return nil
}

func (s *Shell) setupTemplate() string {
	if s.SetupCmd == "" {
		return DefaultSetup
	}
	return s.SetupCmd
}

func (s *Shell) compileTemplate() string {
	if s.CompileCmd == "" {
		return DefaultCompile
	}
	return s.CompileCmd
}

func (s *Shell) command(name, script, dir string, args []string) (shell.Command, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return shell.Command{}, eris.Wrapf(err, "failed to resolve %s", dir)
	}

	env := make(map[string]string, len(s.Env)+1)
	for key, value := range s.Env {
		env[key] = value
	}
	env[BuildDirVar] = absDir

	return shell.Command{
		Name:   name,
		Script: script,
		Args:   args,
		Dir:    s.Dir,
		Env:    env,
		Stdout: s.Stdout,
		Stderr: s.Stderr,
	}, nil
}

func (s *Shell) run(ctx context.Context, name, script, dir string, args []string) (int, error) {
	cmd, err := s.command(name, script, dir, args)
	if err != nil {
		return -1, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("step", name).
		Str("dir", cmd.Env[BuildDirVar]).
		Strs("args", args).
		Msg("running builder")

	return shell.Run(ctx, cmd)
}

// Configure runs the setup template for dir with flags as "$@".
func (s *Shell) Configure(ctx context.Context, dir string, flags []string) (int, error) {
	return s.run(ctx, "setup", s.setupTemplate(), dir, flags)
}

// Compile runs the compile template for dir.
func (s *Shell) Compile(ctx context.Context, dir string) (int, error) {
	return s.run(ctx, "compile", s.compileTemplate(), dir, nil)
}

// Commands renders the commands Configure and Compile would run for display. Only the
// default templates can be rendered exactly; custom templates are shown with their
// parameters listed after them.
func (s *Shell) Commands(dir string, flags []string) []string {
	setup := s.setupTemplate()
	compile := s.compileTemplate()

	var setupLine, compileLine string
	if setup == DefaultSetup {
		setupLine = shell.Join(append([]string{"meson", "setup", dir}, flags...))
	} else {
		setupLine = strings.TrimSpace(setup + " # " + BuildDirVar + "=" + shell.Join([]string{dir}) + " " + shell.Join(flags))
	}

	if compile == DefaultCompile {
		compileLine = shell.Join([]string{"meson", "compile", "-C", dir})
	} else {
		compileLine = compile + " # " + BuildDirVar + "=" + shell.Join([]string{dir})
	}

	return []string{setupLine, compileLine}
}
