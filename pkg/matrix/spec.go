package matrix

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/shell"
)

type specCase struct {
	Name      string   `yaml:"name"`
	Desc      string   `yaml:"desc"`
	Flags     []string `yaml:"flags"`
	If        string   `yaml:"if"`
	PkgConfig []string `yaml:"pkg-config"`
	Programs  []string `yaml:"programs"`
	Env       []string `yaml:"env"`
}

type specFile struct {
	Cases []specCase `yaml:"cases"`
}

func (c specCase) guard(filename string) (Guard, error) {
	guards := AllOf{}
	for _, module := range c.PkgConfig {
		guards = append(guards, PkgConfig{Module: module})
	}
	for _, name := range c.Programs {
		guards = append(guards, Program{Name: name})
	}
	for _, name := range c.Env {
		guards = append(guards, EnvSet{Name: name})
	}

	if c.If != "" {
		if _, err := shell.Parse(filename+":"+c.Name, c.If); err != nil {
			return nil, err
		}
		guards = append(guards, Script{Source: c.If})
	}

	switch len(guards) {
	case 0:
		return nil, nil
	case 1:
		return guards[0], nil
	default:
		return guards, nil
	}
}

// LoadSpec parses a YAML matrix definition. Unknown keys are rejected.
func LoadSpec(ctx context.Context, filename string, content []byte) (*Definition, error) {
	var doc specFile

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, eris.Wrapf(err, "failed to parse %s", filename)
	}

	cases := make([]Case, 0, len(doc.Cases))
	for idx, item := range doc.Cases {
		guard, err := item.guard(filename)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid guard for case #%d (%s)", idx+1, item.Name)
		}

		flags := item.Flags
		if flags == nil {
			flags = []string{}
		}

		cases = append(cases, Case{
			Name:  item.Name,
			Desc:  item.Desc,
			Flags: flags,
			Guard: guard,
		})
	}

	if len(cases) == 0 {
		log(ctx).Warn().Str("path", filename).Msg("matrix definition declares no cases")
	}

	return &Definition{
		Source:  filename,
		Cases:   cases,
		Options: map[string]ScriptOption{},
	}, nil
}
