package matrix

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultPrefix is prepended to case names to derive working directory names.
const DefaultPrefix = "build-"

// Runner drives a list of cases through a Builder one after another.
type Runner struct {
	Builder Builder
	// Root is the directory the working directories are created in. Defaults to the current directory.
	Root string
	// Prefix defaults to DefaultPrefix.
	Prefix string
	// StepTimeout limits each configure and compile step. Zero disables the limit.
	StepTimeout time.Duration
	Observer    Observer
	// Collector is called for failed cases before their working directory is removed.
	Collector Collector
}

// WorkDir returns the working directory used for the named case.
func (r *Runner) WorkDir(name string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	root := r.Root
	if root == "" {
		root = "."
	}

	return filepath.Join(root, prefix+name)
}

// Validate checks that every case has a usable, unique name.
func Validate(cases []Case) error {
	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		if c.Name == "" {
			return &ConfigError{Reason: "found a case without a name"}
		}

		if !validName.MatchString(c.Name) {
			return &ConfigError{Reason: fmt.Sprintf("case name %q may only contain letters, digits, '.', '_', '+' and '-'", c.Name)}
		}

		if seen[c.Name] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate case name %q", c.Name)}
		}
		seen[c.Name] = true
	}

	return nil
}

// Run executes all cases in order and returns one result per case. Case failures are
// recorded in the summary; the returned error is reserved for runner-level faults
// (a *ConfigError or an interrupt) in which case the summary is nil.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Summary, error) {
	if r.Builder == nil {
		return nil, &ConfigError{Reason: "no builder configured"}
	}

	if err := Validate(cases); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "run interrupted before the first case")
	}

	summary := &Summary{Results: make([]CaseResult, 0, len(cases))}
	total := len(cases)
	for idx, c := range cases {
		if r.Observer != nil {
			r.Observer.CaseStarted(idx, total, c)
		}

		result, err := r.runCase(ctx, c)
		if err != nil {
			return nil, err
		}

		summary.Results = append(summary.Results, result)
		if r.Observer != nil {
			r.Observer.CaseFinished(idx, total, result)
		}
	}

	return summary, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) (result CaseResult, err error) {
	started := time.Now()
	logger := log(ctx).With().Str("case", c.Name).Logger()

	if c.Guard != nil && !c.Guard.Satisfied(ctx) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return CaseResult{}, eris.Wrapf(ctxErr, "run interrupted during case %s", c.Name)
		}

		logger.Warn().Str("guard", c.Guard.String()).Msg("skipped because its guard does not hold")
		return CaseResult{
			Name:     c.Name,
			Outcome:  Skipped,
			ExitCode: -1,
			Duration: time.Since(started),
		}, nil
	}

	dir, err := acquireWorkDir(r.WorkDir(c.Name))
	if err != nil {
		return CaseResult{}, err
	}

	defer func() {
		relErr := dir.release()
		if relErr == nil {
			return
		}

		if err != nil {
			logger.Error().Err(relErr).Msg("failed to remove working directory")
			return
		}

		result = CaseResult{}
		err = relErr
	}()

	outcome, code, stepErr := r.steps(ctx, &logger, c, dir.path)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return CaseResult{}, eris.Wrapf(ctxErr, "run interrupted during case %s", c.Name)
	}

	result = CaseResult{
		Name:     c.Name,
		Outcome:  outcome,
		ExitCode: code,
		Err:      stepErr,
		Duration: time.Since(started),
	}

	if outcome.Failed() && r.Collector != nil {
		if colErr := r.Collector.Collect(ctx, c, result, dir.path); colErr != nil {
			logger.Warn().Err(colErr).Msg("failed to collect build logs")
		}
	}

	return result, nil
}

func (r *Runner) steps(ctx context.Context, logger *zerolog.Logger, c Case, dir string) (Outcome, int, error) {
	logger.Info().Strs("flags", c.Flags).Msg("configuring")
	code, err := r.step(ctx, "configure", func(ctx context.Context) (int, error) {
		return r.Builder.Configure(ctx, dir, c.Flags)
	})
	if err != nil || code != 0 {
		logger.Error().Err(err).Int("exit_code", code).Msg("configure failed")
		return ConfigureFailed, code, err
	}

	if ctx.Err() != nil {
		return Passed, code, nil
	}

	logger.Info().Msg("compiling")
	code, err = r.step(ctx, "compile", func(ctx context.Context) (int, error) {
		return r.Builder.Compile(ctx, dir)
	})
	if err != nil || code != 0 {
		logger.Error().Err(err).Int("exit_code", code).Msg("compile failed")
		return CompileFailed, code, err
	}

	logger.Info().Msg("passed")
	return Passed, 0, nil
}

// step runs a single builder operation under the step timeout. Panics are turned into errors
// so that they count as a failure of this step only.
func (r *Runner) step(ctx context.Context, name string, fn func(context.Context) (int, error)) (code int, err error) {
	stepCtx := ctx
	if r.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.StepTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			code = -1
			err = eris.Errorf("%s step panicked: %v", name, p)
		}
	}()

	code, err = fn(stepCtx)
	if ctx.Err() == nil && stepCtx.Err() != nil {
		return -1, eris.Wrapf(stepCtx.Err(), "%s step exceeded the timeout of %s", name, r.StepTimeout)
	}

	if err != nil && code == 0 {
		code = -1
	}

	return code, err
}
