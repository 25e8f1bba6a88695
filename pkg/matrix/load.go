package matrix

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ngld/knossos/packages/buildmatrix/pkg"
)

//go:embed default.star
var defaultScript []byte

// DefaultSource is the name reported for the built-in matrix.
const DefaultSource = "<builtin>/default.star"

// DefinitionFiles are the file names Discover looks for, in order of preference.
var DefinitionFiles = []string{"matrix.star", "matrix.yml", "matrix.yaml"}

// Definition is a loaded matrix.
type Definition struct {
	// Source is the file the cases were loaded from or DefaultSource.
	Source string
	// Cases are in declaration order.
	Cases   []Case
	Options map[string]ScriptOption
}

// Discover returns the first definition file found in dir or one of its parents. An empty
// string means the built-in matrix should be used.
func Discover(dir string) (string, error) {
	path, err := pkg.FindUpwards(dir, DefinitionFiles...)
	if err != nil {
		return "", &ConfigError{Reason: "failed to look for a matrix definition", Err: err}
	}

	return path, nil
}

// Load reads the matrix definition at path. An empty path loads the built-in matrix. Options are
// only supported by Starlark definitions. All errors are *ConfigError.
func Load(ctx context.Context, path string, options map[string]string) (*Definition, error) {
	var def *Definition
	var err error

	if path == "" {
		def, err = LoadScript(ctx, DefaultSource, defaultScript, options)
	} else {
		var content []byte
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("failed to read %s", path), Err: err}
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".star":
			def, err = LoadScript(ctx, path, content, options)
		case ".yml", ".yaml":
			if len(options) > 0 {
				return nil, &ConfigError{Reason: fmt.Sprintf("%s is a YAML definition which can't take options", path)}
			}
			def, err = LoadSpec(ctx, path, content)
		default:
			return nil, &ConfigError{Reason: fmt.Sprintf("don't know how to load %s, expected a .star, .yml or .yaml file", path)}
		}
	}

	if err != nil {
		source := path
		if source == "" {
			source = DefaultSource
		}
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to load %s", source), Err: err}
	}

	if err = Validate(def.Cases); err != nil {
		return nil, err
	}

	return def, nil
}

// Select returns the named cases in declaration order. No names selects every case.
func (d *Definition) Select(names []string) ([]Case, error) {
	if len(names) == 0 {
		return d.Cases, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	selected := make([]Case, 0, len(names))
	for _, c := range d.Cases {
		if wanted[c.Name] {
			selected = append(selected, c)
			delete(wanted, c.Name)
		}
	}

	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for _, name := range names {
			if wanted[name] {
				unknown = append(unknown, name)
				delete(wanted, name)
			}
		}
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown case(s) %s", strings.Join(unknown, ", "))}
	}

	return selected, nil
}
