package matrix

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/colorstring"
)

var outcomeLabels = map[Outcome]string{
	Passed:          "[green][bold]PASS[reset]",
	ConfigureFailed: "[red][bold]FAIL[reset]",
	CompileFailed:   "[red][bold]FAIL[reset]",
	Skipped:         "[yellow][bold]SKIP[reset]",
}

func describe(result CaseResult) string {
	switch result.Outcome {
	case ConfigureFailed, CompileFailed:
		step := "configure"
		if result.Outcome == CompileFailed {
			step = "compile"
		}

		if result.Err != nil {
			return fmt.Sprintf("%s failed: %s", step, firstLine(result.Err.Error()))
		}
		return fmt.Sprintf("%s failed (exit status %d)", step, result.ExitCode)
	case Skipped:
		return "guard not satisfied"
	default:
		return ""
	}
}

func firstLine(msg string) string {
	if pos := strings.IndexByte(msg, '\n'); pos > -1 {
		return msg[:pos]
	}
	return msg
}

// WriteReport prints one status line per case in declaration order followed by a line with
// the totals. colors may be nil to print without colour codes.
func WriteReport(w io.Writer, colors *colorstring.Colorize, summary *Summary) error {
	if colors == nil {
		colors = &colorstring.Colorize{Colors: colorstring.DefaultColors, Disable: true}
	}

	nameWidth := 0
	for _, result := range summary.Results {
		if len(result.Name) > nameWidth {
			nameWidth = len(result.Name)
		}
	}

	var buffer strings.Builder
	lineFmt := fmt.Sprintf("  %%s  %%-%ds  %%6s", nameWidth)
	for _, result := range summary.Results {
		duration := ""
		if result.Outcome != Skipped {
			duration = result.Duration.Round(100 * time.Millisecond).String()
		}

		buffer.WriteString(fmt.Sprintf(lineFmt, colors.Color(outcomeLabels[result.Outcome]), result.Name, duration))
		if detail := describe(result); detail != "" {
			buffer.WriteString("  " + detail)
		}
		buffer.WriteString("\n")
	}

	status := "[green][bold]OK[reset]"
	if !summary.OK() {
		status = "[red][bold]FAILED[reset]"
	}
	buffer.WriteString(fmt.Sprintf("\n%s: %d passed, %d failed, %d skipped\n", colors.Color(status),
		summary.Passed(), summary.Failed(), summary.Skipped()))

	_, err := io.WriteString(w, buffer.String())
	return err
}
