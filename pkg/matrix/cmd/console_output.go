package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ConsoleWriter renders zerolog's JSON events as coloured, human readable lines.
type ConsoleWriter struct {
	Out    io.Writer
	Colors *colorstring.Colorize
	// BeforeWrite and AfterWrite wrap every line; the progress bar uses them to get out of the way.
	BeforeWrite func()
	AfterWrite  func()

	buffer strings.Builder
	lock   sync.Mutex
}

func NewConsoleWriter(out io.Writer, colors *colorstring.Colorize) *ConsoleWriter {
	return &ConsoleWriter{Out: out, Colors: colors}
}

func debugEnabled() bool {
	return os.Getenv("BUILDMATRIX_DEBUG") != ""
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	w.buffer.Reset()
	color := "[green]"
	switch evt["level"] {
	case "fatal", "error":
		color = "[red]"
	case "warn":
		color = "[yellow]"
	case "debug", "trace":
		color = "[blue]"
	}

	if name, ok := evt["case"].(string); ok {
		w.buffer.WriteString(name + ": ")
	}

	if evt["level"] == "error" {
		w.buffer.WriteString("Error: ")
	}

	msg, _ := evt["message"].(string)

	if path, ok := evt["path"].(string); ok {
		// simplify the path
		relPath, err := filepath.Rel(".", path)
		if err == nil {
			msg = strings.ReplaceAll(msg, path, relPath)
		}
	}

	w.buffer.WriteString(msg)

	for _, field := range []string{"guard", "exit_code"} {
		if value, ok := evt[field]; ok {
			w.buffer.WriteString(fmt.Sprintf(" (%s: %v)", field, value))
		}
	}

	if errorDetails, ok := evt["error"].(string); ok && errorDetails != "" {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(errorDetails)
	}

	if debugEnabled() {
		w.buffer.WriteString("\n")
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	// only the markup goes through colorstring, the message may contain brackets
	line := fmt.Sprintf(w.Colors.Color(color+"%s[reset]"), w.buffer.String()) + "\n"

	if w.BeforeWrite != nil {
		w.BeforeWrite()
	}
	_, err = io.WriteString(w.Out, line)
	if w.AfterWrite != nil {
		w.AfterWrite()
	}

	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		if err == nil {
			return nil
		}
		return eris.ToString(err, debugEnabled())
	}
}
