package matrix

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/shell"
)

// ScriptOption is an option declared by a matrix script through option().
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

type scriptCtx struct {
	ctx          context.Context
	filename     string
	options      map[string]ScriptOption
	optionValues map[string]string
	cases        []Case
	initPhase    bool
}

func getScriptCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

// starlarkGuard makes a Guard usable as a Starlark value.
type starlarkGuard struct {
	guard Guard
}

func (g starlarkGuard) String() string {
	return g.guard.String()
}

// Type always returns "guard"
func (g starlarkGuard) Type() string {
	return "guard"
}

// Freeze doesn't do anything since guards are immutable anyway
func (g starlarkGuard) Freeze() {}

func (g starlarkGuard) Truth() starlark.Bool {
	return starlark.True
}

func (g starlarkGuard) Hash() (uint32, error) {
	return 0, eris.New("guard is not a hashable type")
}

func toGuard(value starlark.Value, field string) (Guard, error) {
	switch value := value.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return Const(value), nil
	case starlarkGuard:
		return value.guard, nil
	default:
		return nil, eris.Errorf("%s: got %s, want guard or bool", field, value.Type())
	}
}

func iterableToStrings(input starlark.Iterable, field string) ([]string, error) {
	result := []string{}
	if input == nil {
		return result, nil
	}

	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

func scriptLog(thread *starlark.Thread, level string, msg string) {
	ctx := getScriptCtx(thread)
	pos := thread.CallFrame(1).Pos
	line := fmt.Sprintf("%s:%d:%d: %s", ctx.filename, pos.Line, pos.Col, msg)

	logger := log(ctx.ctx)
	if level == "warn" {
		logger.Warn().Msg(line)
	} else {
		logger.Info().Msg(line)
	}
}

// * Builtin functions

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message); err != nil {
		return nil, err
	}

	scriptLog(thread, "info", message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message); err != nil {
		return nil, err
	}

	scriptLog(thread, "warn", message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message); err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func starGetenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var defaultValue string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key, &defaultValue); err != nil {
		return nil, err
	}

	value, ok := os.LookupEnv(key)
	if !ok {
		value = defaultValue
	}
	return starlark.String(value), nil
}

func starOption(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getScriptCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func starCase(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var flags starlark.Iterable
	var guard starlark.Value
	c := Case{}

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &c.Name, "flags?", &flags, "desc?", &c.Desc,
		"guard?", &guard)
	if err != nil {
		return nil, err
	}

	c.Flags, err = iterableToStrings(flags, "flags")
	if err != nil {
		return nil, err
	}

	c.Guard, err = toGuard(guard, "guard")
	if err != nil {
		return nil, err
	}

	ctx := getScriptCtx(thread)
	ctx.cases = append(ctx.cases, c)
	return starlark.None, nil
}

func starPkgConfig(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var module string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &module); err != nil {
		return nil, err
	}

	return starlarkGuard{PkgConfig{Module: module}}, nil
}

func starHaveProgram(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}

	return starlarkGuard{Program{Name: name}}, nil
}

func starEnvSet(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}

	return starlarkGuard{EnvSet{Name: name}}, nil
}

func starShell(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var script string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &script); err != nil {
		return nil, err
	}

	// catch syntax errors while loading instead of silently skipping the case later
	if _, err := shell.Parse(fn.Name(), script); err != nil {
		return nil, err
	}

	return starlarkGuard{Script{Source: script}}, nil
}

func starAllOf(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	guards := make(AllOf, 0, len(args))
	for idx, arg := range args {
		guard, err := toGuard(arg, fmt.Sprintf("%s: argument %d", fn.Name(), idx+1))
		if err != nil {
			return nil, err
		}

		if guard != nil {
			guards = append(guards, guard)
		}
	}

	return starlarkGuard{guards}, nil
}

func starNegate(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &value); err != nil {
		return nil, err
	}

	guard, err := toGuard(value, fn.Name())
	if err != nil {
		return nil, err
	}
	if guard == nil {
		return nil, eris.Errorf("%s: got None, want guard or bool", fn.Name())
	}

	return starlarkGuard{Not{Guard: guard}}, nil
}

// LoadScript executes a matrix script and returns the cases it declared. Cases may be declared
// in the global scope or from an optional configure() function which runs after the global scope.
// optionValues overrides the defaults passed to option(); naming an option the script never
// declares is an error.
func LoadScript(ctx context.Context, filename string, script []byte, optionValues map[string]string) (*Definition, error) {
	builtins := starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"getenv":       starlark.NewBuiltin("getenv", starGetenv),
		"option":       starlark.NewBuiltin("option", starOption),
		"case":         starlark.NewBuiltin("case", starCase),
		"pkg_config":   starlark.NewBuiltin("pkg_config", starPkgConfig),
		"have_program": starlark.NewBuiltin("have_program", starHaveProgram),
		"env_set":      starlark.NewBuiltin("env_set", starEnvSet),
		"shell":        starlark.NewBuiltin("shell", starShell),
		"all_of":       starlark.NewBuiltin("all_of", starAllOf),
		"negate":       starlark.NewBuiltin("negate", starNegate),
	}

	thread := &starlark.Thread{
		Name: "matrix",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}

	if optionValues == nil {
		optionValues = map[string]string{}
	}

	threadCtx := scriptCtx{
		ctx:          ctx,
		filename:     filename,
		options:      make(map[string]ScriptOption),
		optionValues: optionValues,
		cases:        make([]Case, 0),
		initPhase:    true,
	}
	thread.SetLocal("scriptCtx", &threadCtx)

	globals, err := starlark.ExecFile(thread, filename, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", filename, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", filename)
	}

	if configure, ok := globals["configure"]; ok {
		configureFunc, ok := configure.(starlark.Callable)
		if !ok {
			return nil, eris.Errorf("%s did declare a configure value but it's not a function", filename)
		}

		threadCtx.initPhase = false
		_, err = starlark.Call(thread, configureFunc, starlark.Tuple{}, nil)
		if err != nil {
			if evalError, ok := err.(*starlark.EvalError); ok {
				return nil, eris.New(evalError.Backtrace())
			}
			return nil, eris.Wrapf(err, "failed configure call in %s", filename)
		}
	}

	unknown := make([]string, 0)
	for name := range optionValues {
		if _, ok := threadCtx.options[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, eris.Errorf("%s does not declare the option(s) %v", filename, unknown)
	}

	return &Definition{
		Source:  filename,
		Cases:   threadCtx.cases,
		Options: threadCtx.options,
	}, nil
}
