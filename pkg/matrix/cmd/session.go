package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ngld/knossos/packages/buildmatrix/pkg"
	"github.com/ngld/knossos/packages/buildmatrix/pkg/builder"
	"github.com/ngld/knossos/packages/buildmatrix/pkg/config"
	"github.com/ngld/knossos/packages/buildmatrix/pkg/matrix"
)

// Session bundles everything a command needs after the configuration and the matrix definition
// have been loaded.
type Session struct {
	Ctx        context.Context
	Config     *config.Config
	Logger     *zerolog.Logger
	Console    *ConsoleWriter
	Colors     *colorstring.Colorize
	Out        io.Writer
	Definition *matrix.Definition
	// Cases is the selected subset of Definition.Cases.
	Cases []matrix.Case
}

// SplitArgs separates name=value options from case names.
func SplitArgs(args []string) (names []string, options map[string]string) {
	names = make([]string, 0, len(args))
	options = make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			names = append(names, part)
		}
	}

	return names, options
}

// AddSessionFlags registers the flags NewSession understands.
func AddSessionFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", config.DefaultFile, "configuration file")
	flags.StringP("file", "f", "", "matrix definition (default: search for matrix.star, matrix.yml or matrix.yaml)")
	flags.String("root", "", "directory for the working directories (default .)")
	flags.String("prefix", "", "prefix for working directory names (default build-)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-json", false, "write logs as JSON lines")
	flags.Bool("no-color", false, "disable coloured output")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	for name, target := range map[string]*string{
		"file":    &cfg.File,
		"root":    &cfg.Root,
		"prefix":  &cfg.Prefix,
		"report":  &cfg.Report,
		"archive": &cfg.Archive,
	} {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}

		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*target = value
	}

	for name, target := range map[string]*bool{
		"log-json": &cfg.Log.JSON,
		"no-color": &cfg.Log.NoColor,
		"verbose":  &cfg.Verbose,
	} {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}

		value, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*target = value
	}

	if flags.Lookup("step-timeout") != nil && flags.Changed("step-timeout") {
		value, err := flags.GetDuration("step-timeout")
		if err != nil {
			return err
		}
		cfg.StepTimeout = value
	}

	if flags.Changed("log-level") {
		value, err := flags.GetString("log-level")
		if err != nil {
			return err
		}
		if err = cfg.SetLogLevel(value); err != nil {
			return err
		}
	}

	return nil
}

// NewSession loads the configuration (file < environment < flags), sets up logging and loads the
// matrix definition. args are the command's positional arguments.
func NewSession(cmd *cobra.Command, args []string) (*Session, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, loader := config.Loader(configFile)
	if err = loader.Load(); err != nil {
		return nil, &matrix.ConfigError{Reason: "failed to load " + configFile, Err: err}
	}

	if err = applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, &matrix.ConfigError{Reason: "invalid configuration", Err: err}
	}

	if cfg.Debug {
		os.Setenv("BUILDMATRIX_DEBUG", "1")
	}

	out := cmd.OutOrStdout()
	colors := &colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Reset:   true,
		Disable: cfg.Log.NoColor || !isTerminal(out),
	}
	pkg.Colors = colors
	pkg.Output = out

	var logger zerolog.Logger
	var console *ConsoleWriter
	if cfg.Log.JSON {
		logger = zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger()
	} else {
		console = NewConsoleWriter(cmd.ErrOrStderr(), &colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Reset:   true,
			Disable: cfg.Log.NoColor || !isTerminal(cmd.ErrOrStderr()),
		})
		logger = zerolog.New(console)
	}
	logger = logger.Level(cfg.LogLevel())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = matrix.WithLogger(ctx, &logger)

	names, options := SplitArgs(args)

	path := cfg.File
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "failed to retrieve the current working directory")
		}

		path, err = matrix.Discover(wd)
		if err != nil {
			return nil, err
		}
	}

	if path == "" {
		logger.Debug().Msg("no matrix definition found, using the built-in matrix")
	} else {
		logger.Debug().Str("path", path).Msg("loading matrix definition")
	}

	def, err := matrix.Load(ctx, path, options)
	if err != nil {
		return nil, err
	}

	cases, err := def.Select(names)
	if err != nil {
		return nil, err
	}

	return &Session{
		Ctx:        ctx,
		Config:     cfg,
		Logger:     &logger,
		Console:    console,
		Colors:     colors,
		Out:        out,
		Definition: def,
		Cases:      cases,
	}, nil
}

// Runner returns a runner configured from the session. The builder's output goes to stdout and
// stderr unless overridden by the caller.
func (s *Session) Runner() (*matrix.Runner, *builder.Shell, error) {
	b := &builder.Shell{
		SetupCmd:   s.Config.Builder.Setup,
		CompileCmd: s.Config.Builder.Compile,
		Dir:        s.Config.Builder.Dir,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	if err := b.Validate(); err != nil {
		return nil, nil, &matrix.ConfigError{Reason: "invalid builder command", Err: err}
	}

	return &matrix.Runner{
		Builder:     b,
		Root:        s.Config.Root,
		Prefix:      s.Config.Prefix,
		StepTimeout: s.Config.StepTimeout,
	}, b, nil
}
