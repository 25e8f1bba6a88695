// Package cmd implements the buildmatrix command line on top of the matrix package
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/matrix"
	"github.com/ngld/knossos/packages/buildmatrix/pkg/publish"
	"github.com/ngld/knossos/packages/buildmatrix/pkg/results"
)

// RunFailedError is returned when the run completed but at least one case failed. The report
// has already been printed.
type RunFailedError struct {
	Failed int
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("%d case(s) failed", e.Failed)
}

// ExitCode is the process exit status for this failure.
func (e *RunFailedError) ExitCode() int {
	return 1
}

// NewRunCmd creates the command which runs the matrix.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buildmatrix [case...] [option=value...]",
		Short: "Configure and compile a project in every configuration of its build matrix",
		Long: `This command loads the first matrix.star, matrix.yml or matrix.yaml it finds (or the built-in
Meson matrix) and configures and compiles the project once per case, each in a fresh working
directory. Failures don't stop the run; the exit status is non-zero if any case failed.

Arguments of the form name=value set options declared by the matrix script, all other arguments
select cases by name.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMatrix,
	}

	AddSessionFlags(cmd)
	cmd.Flags().BoolP("verbose", "v", false, "stream builder output (default: only show the output of failed cases)")
	cmd.Flags().Duration("step-timeout", 0, "limit for each configure and compile step (0 disables)")
	cmd.Flags().String("report", "", "write a JSON report to this path")
	cmd.Flags().String("archive", "", "collect the logs of failed cases into this .tar.xz file")

	return cmd
}

// RootCmd runs the matrix
var RootCmd = NewRunCmd()

func runMatrix(cmd *cobra.Command, args []string) error {
	session, err := NewSession(cmd, args)
	if err != nil {
		return err
	}

	cfg := session.Config
	logger := session.Logger

	runner, b, err := session.Runner()
	if err != nil {
		return err
	}

	observer := &progressObserver{out: session.Out}
	if cfg.Verbose {
		b.Stdout = cmd.OutOrStdout()
		b.Stderr = cmd.ErrOrStderr()
	} else {
		observer.capture = &syncBuffer{}
		b.Stdout = observer.capture
		b.Stderr = observer.capture

		if !cfg.Log.JSON && isTerminal(cmd.ErrOrStderr()) && os.Getenv("CI") != "true" {
			observer.bar = newProgressBar(len(session.Cases), cmd.ErrOrStderr())
			session.Console.BeforeWrite = observer.clear
			session.Console.AfterWrite = observer.redraw
		}
	}
	runner.Observer = observer

	var archive *results.Archive
	if cfg.Archive != "" {
		archive = results.NewArchive(cfg.Archive, cfg.LogPatterns)
		runner.Collector = archive
	}

	logger.Info().Str("path", session.Definition.Source).Msgf("running %d case(s)", len(session.Cases))

	started := time.Now()
	summary, runErr := runner.Run(session.Ctx, session.Cases)
	finished := time.Now()

	archivePath := ""
	if archive != nil {
		archivePath, err = archive.Close()
		if err != nil {
			logger.Error().Err(err).Msg("failed to finish the log archive")
		}
	}

	if runErr != nil {
		observer.clear()
		return runErr
	}

	observer.finish()
	if session.Console != nil {
		session.Console.BeforeWrite = nil
		session.Console.AfterWrite = nil
	}

	if err = matrix.WriteReport(session.Out, session.Colors, summary); err != nil {
		return eris.Wrap(err, "failed to print the report")
	}

	report := results.NewReport(summary, session.Definition.Source, started, finished)
	if cfg.Report != "" {
		if err = report.WriteFile(cfg.Report); err != nil {
			logger.Error().Err(err).Msg("failed to write the report")
		} else {
			logger.Info().Str("path", cfg.Report).Msg("wrote report")
		}
	}

	if archivePath != "" {
		logger.Info().Str("path", archivePath).Msgf("archived the logs of %d failed case(s)", archive.Cases())
	}

	publisher, err := cfg.Publisher()
	if err != nil {
		logger.Warn().Err(err).Msg("publishing is misconfigured, skipping it")
	} else if publisher.Enabled() {
		data, err := report.Marshal()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to encode the report for publishing")
		} else {
			// failures are logged by Publish and don't affect the exit status
			_ = publisher.Publish(session.Ctx, publish.Artifacts{
				RunID:       report.RunID,
				Report:      data,
				ArchivePath: archivePath,
			})
		}
	}

	if !summary.OK() {
		return &RunFailedError{Failed: summary.Failed()}
	}

	return nil
}
