package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// FindUpwards looks for the first of names in start and each of its parents. It returns an empty
// string if none of them exist anywhere up to the filesystem root.
func FindUpwards(start string, names ...string) (string, error) {
	path, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", start)
	}

	for {
		for _, name := range names {
			candidate := filepath.Join(path, name)
			_, err := os.Stat(candidate)
			if err == nil {
				return candidate, nil
			}

			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrapf(err, "failed to check %s", candidate)
			}
		}

		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	return "", nil
}

// Colors renders the colour codes used by the Print helpers. Set Disable to print plain text.
var Colors = &colorstring.Colorize{
	Colors: colorstring.DefaultColors,
	Reset:  true,
}

// Output receives everything printed by the Print helpers.
var Output io.Writer = os.Stdout

func PrintTask(msg string) {
	fmt.Fprintf(Output, "%s %s\n", Colors.Color("[blue][bold]==>[default]"), msg)
}

func PrintSubtask(msg string) {
	fmt.Fprintf(Output, "%s %s\n", Colors.Color("[green][bold]  ->[reset]"), msg)
}

func PrintError(msg string) {
	fmt.Fprintf(Output, "%s %s\n", Colors.Color("[red][bold]  ->[reset]"), msg)
}
