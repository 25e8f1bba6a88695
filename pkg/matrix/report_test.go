package matrix

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport_PrintsLinePerCase_When_SummaryMixed(t *testing.T) {
	t.Parallel()

	summary := &Summary{Results: []CaseResult{
		{Name: "ok", Outcome: Passed, Duration: 1234 * time.Millisecond},
		{Name: "broken", Outcome: ConfigureFailed, ExitCode: 1, Duration: time.Second},
		{Name: "slow", Outcome: CompileFailed, ExitCode: -1, Err: errors.New("compile step exceeded the timeout of 1s\ndetails"), Duration: time.Second},
		{Name: "absent", Outcome: Skipped, ExitCode: -1},
	}}

	var out bytes.Buffer
	require.NoError(t, WriteReport(&out, nil, summary))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "  PASS  ok        1.2s", lines[0])
	assert.Equal(t, "  FAIL  broken      1s  configure failed (exit status 1)", lines[1])
	assert.Equal(t, "  FAIL  slow        1s  compile failed: compile step exceeded the timeout of 1s", lines[2])
	assert.Equal(t, "  SKIP  absent          guard not satisfied", lines[3])
	assert.Equal(t, "", lines[4])
	assert.Equal(t, "FAILED: 1 passed, 2 failed, 1 skipped", lines[5])
}

func TestWriteReport_ReportsOK_When_OnlySkips(t *testing.T) {
	t.Parallel()

	summary := &Summary{Results: []CaseResult{{Name: "a", Outcome: Skipped}}}

	var out bytes.Buffer
	require.NoError(t, WriteReport(&out, nil, summary))

	assert.Contains(t, out.String(), "OK: 0 passed, 0 failed, 1 skipped")
}

func TestWriteReport_EmitsColourCodes_When_ColorsEnabled(t *testing.T) {
	t.Parallel()

	colors := &colorstring.Colorize{Colors: colorstring.DefaultColors, Reset: true}
	summary := &Summary{Results: []CaseResult{{Name: "a", Outcome: Passed}}}

	var out bytes.Buffer
	require.NoError(t, WriteReport(&out, colors, summary))

	assert.Contains(t, out.String(), "\033[")
	assert.NotContains(t, out.String(), "[green]")
}

func TestWriteReport_KeepsBrackets_When_ErrorMentionsThem(t *testing.T) {
	t.Parallel()

	summary := &Summary{Results: []CaseResult{
		{Name: "idx", Outcome: CompileFailed, ExitCode: -1, Err: errors.New("compile step panicked: index out of range [0] with length 0")},
	}}

	var out bytes.Buffer
	require.NoError(t, WriteReport(&out, nil, summary))

	assert.Contains(t, out.String(), "index out of range [0] with length 0")
}
