// Package results turns a matrix run into artifacts: a JSON report and an archive with the build
// logs of failed cases.
package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/matrix"
)

// CaseEntry is the report entry for a single case.
type CaseEntry struct {
	Name       string         `json:"name"`
	Outcome    matrix.Outcome `json:"outcome"`
	ExitCode   int            `json:"exit_code"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

type Counts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Report is the machine-readable record of a run.
type Report struct {
	RunID    string    `json:"run_id"`
	Source   string    `json:"source,omitempty"`
	Host     string    `json:"host,omitempty"`
	OS       string    `json:"os"`
	Arch     string    `json:"arch"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	OK       bool      `json:"ok"`
	ExitCode int       `json:"exit_code"`
	Counts   Counts    `json:"counts"`
	// PassRate is passed / (passed + failed) with two decimal places. Skipped cases are left out;
	// a run which executed nothing has a pass rate of 0.
	PassRate decimal.Decimal `json:"pass_rate"`
	Cases    []CaseEntry     `json:"cases"`
}

// PassRate computes the share of executed cases which passed.
func PassRate(summary *matrix.Summary) decimal.Decimal {
	executed := summary.Passed() + summary.Failed()
	if executed == 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(int64(summary.Passed())).DivRound(decimal.NewFromInt(int64(executed)), 2)
}

// NewReport builds a report for summary. source names the matrix definition.
func NewReport(summary *matrix.Summary, source string, started, finished time.Time) *Report {
	host, _ := os.Hostname()

	report := &Report{
		RunID:    nanoid.New(),
		Source:   source,
		Host:     host,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Started:  started.UTC(),
		Finished: finished.UTC(),
		OK:       summary.OK(),
		ExitCode: summary.ExitCode(),
		Counts: Counts{
			Total:   len(summary.Results),
			Passed:  summary.Passed(),
			Failed:  summary.Failed(),
			Skipped: summary.Skipped(),
		},
		PassRate: PassRate(summary),
		Cases:    make([]CaseEntry, len(summary.Results)),
	}

	for idx, result := range summary.Results {
		entry := CaseEntry{
			Name:       result.Name,
			Outcome:    result.Outcome,
			ExitCode:   result.ExitCode,
			DurationMS: result.Duration.Milliseconds(),
		}
		if result.Err != nil {
			entry.Error = result.Err.Error()
		}

		report.Cases[idx] = entry
	}

	return report
}

// Marshal encodes the report as indented JSON.
func (r *Report) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode report")
	}

	return append(data, '\n'), nil
}

// WriteFile stores the report at path, creating parent directories as needed.
func (r *Report) WriteFile(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", path)
	}

	if err = os.WriteFile(path, data, 0o660); err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}

	return nil
}
