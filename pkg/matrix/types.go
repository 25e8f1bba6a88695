package matrix

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
)

// Case is one named build configuration.
type Case struct {
	Name  string
	Desc  string
	Flags []string
	// Guard gates execution; nil means the case always runs.
	Guard Guard
}

func (c Case) String() string {
	return fmt.Sprintf("<Case %s: %v>", c.Name, c.Flags)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)

// Outcome is the final state of a single case.
type Outcome int

const (
	Passed Outcome = iota
	ConfigureFailed
	CompileFailed
	Skipped
)

var outcomeNames = map[Outcome]string{
	Passed:          "passed",
	ConfigureFailed: "configure-failed",
	CompileFailed:   "compile-failed",
	Skipped:         "skipped",
}

func (o Outcome) String() string {
	name, ok := outcomeNames[o]
	if !ok {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return name
}

// Failed reports whether the outcome counts against the run's exit status.
func (o Outcome) Failed() bool {
	return o == ConfigureFailed || o == CompileFailed
}

// MarshalText implements encoding.TextMarshaler
func (o Outcome) MarshalText() ([]byte, error) {
	name, ok := outcomeNames[o]
	if !ok {
		return nil, eris.Errorf("unknown outcome %d", int(o))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Outcome) UnmarshalText(text []byte) error {
	for value, name := range outcomeNames {
		if name == string(text) {
			*o = value
			return nil
		}
	}
	return eris.Errorf("unknown outcome %q", string(text))
}

// CaseResult records what happened to a single case.
type CaseResult struct {
	Name    string
	Outcome Outcome
	// ExitCode is the status of the last builder step that ran, or -1 if none ran or the step faulted.
	ExitCode int
	// Err carries details for failures that weren't a plain non-zero exit (adapter faults, panics, timeouts).
	Err      error
	Duration time.Duration
}

// Summary is the ordered list of results for one run.
type Summary struct {
	Results []CaseResult
}

func (s *Summary) count(match func(Outcome) bool) int {
	n := 0
	for _, result := range s.Results {
		if match(result.Outcome) {
			n++
		}
	}
	return n
}

// Passed returns the number of passed cases.
func (s *Summary) Passed() int {
	return s.count(func(o Outcome) bool { return o == Passed })
}

// Failed returns the number of cases which failed to configure or compile.
func (s *Summary) Failed() int {
	return s.count(Outcome.Failed)
}

// Skipped returns the number of cases whose guard didn't hold.
func (s *Summary) Skipped() int {
	return s.count(func(o Outcome) bool { return o == Skipped })
}

// OK is true if no case failed. Skipped cases don't count as failures.
func (s *Summary) OK() bool {
	return s.Failed() == 0
}

// ExitCode is the process exit status for this summary.
func (s *Summary) ExitCode() int {
	if s.OK() {
		return 0
	}
	return 1
}

// ConfigError is a runner-level fault. It aborts the whole run before or while cases execute.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s", e.Reason, e.Err.Error())
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Builder is the external build tool. Both steps return the tool's exit status; an error
// means the step could not be carried out at all.
type Builder interface {
	Configure(ctx context.Context, dir string, flags []string) (int, error)
	Compile(ctx context.Context, dir string) (int, error)
}

// Observer receives progress notifications. All calls happen on the runner's goroutine.
type Observer interface {
	CaseStarted(index, total int, c Case)
	CaseFinished(index, total int, result CaseResult)
}

// Collector gets a chance to copy artifacts (usually build logs) out of a failed case's
// working directory before it is removed.
type Collector interface {
	Collect(ctx context.Context, c Case, result CaseResult, dir string) error
}
