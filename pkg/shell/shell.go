// Package shell runs command scripts through mvdan.cc/sh so that builder templates and
// guard probes behave the same on every platform, including Windows hosts without a POSIX shell.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// KillTimeout is how long an interrupted command gets between SIGINT and SIGKILL.
const KillTimeout = 2 * time.Second

// Command describes a single script invocation.
type Command struct {
	// Name is used in parser error messages.
	Name   string
	Script string
	// Args become the positional parameters ("$@") of the script.
	Args   []string
	Dir    string
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
}

var defaultExecHandler = interp.DefaultExecHandler(KillTimeout)

func execHandler(ctx context.Context, args []string) error {
	zerolog.Ctx(ctx).Debug().Strs("argv", args).Msg("exec")
	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func environ(extra map[string]string) expand.Environ {
	envVars := os.Environ()

	keys := make([]string, 0, len(extra))
	for name := range extra {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	for _, name := range keys {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, extra[name]))
	}

	return expand.ListEnviron(envVars...)
}

// Parse checks the script for syntax errors without running it.
func Parse(name, script string) (*syntax.File, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), name)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", script)
	}

	return file, nil
}

// Run executes the command and returns its exit status. A non-zero status is not an error;
// the error return is reserved for scripts that can't be parsed or an interpreter that can't
// be set up, in which case the status is -1. Context cancellation is reported as an error.
func Run(ctx context.Context, cmd Command) (int, error) {
	name := cmd.Name
	if name == "" {
		name = "script"
	}

	file, err := Parse(name, cmd.Script)
	if err != nil {
		return -1, err
	}

	stdout := cmd.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := cmd.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	dir := cmd.Dir
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return -1, eris.Wrap(err, "failed to retrieve the current working directory")
		}
	}

	params := append([]string{"-e", "--"}, cmd.Args...)
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(environ(cmd.Env)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params(params...),
	)
	if err != nil {
		return -1, eris.Wrap(err, "failed to initialize runner")
	}

	err = runner.Run(ctx, file)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, eris.Wrapf(ctxErr, "%s was interrupted", name)
	}

	if err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			return int(status), nil
		}

		return -1, eris.Wrapf(err, "failed to run %s", name)
	}

	return 0, nil
}

// Join renders args as a single shell command line. Arguments that need it are quoted so the
// result can be pasted into a terminal.
func Join(args []string) string {
	if len(args) == 0 {
		return ""
	}

	call := new(syntax.CallExpr)
	call.Args = make([]*syntax.Word, len(args))

	for a, arg := range args {
		var wordPart syntax.WordPart

		switch {
		case arg == "":
			wordPart = &syntax.SglQuoted{Value: ""}
		case strings.Contains(arg, "'"):
			wordPart = &syntax.DblQuoted{Parts: []syntax.WordPart{
				&syntax.Lit{Value: escapeDouble(arg)},
			}}
		case strings.ContainsAny(arg, " \t\n$\"`\\*?[]#~;&|<>(){}"):
			wordPart = &syntax.SglQuoted{Value: arg}
		default:
			wordPart = &syntax.Lit{Value: arg}
		}

		call.Args[a] = &syntax.Word{Parts: []syntax.WordPart{wordPart}}
	}

	var buffer strings.Builder
	printer := syntax.NewPrinter(syntax.Minify(true))
	if err := printer.Print(&buffer, call); err != nil {
		return strings.Join(args, " ")
	}

	return buffer.String()
}

func escapeDouble(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return replacer.Replace(value)
}
