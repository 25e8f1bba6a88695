package matrix

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/shell"
)

// Guard is a precondition for running a case, usually a check for an optional dependency.
type Guard interface {
	Satisfied(ctx context.Context) bool
	String() string
}

// PkgConfig holds if pkg-config knows about Module. $PKG_CONFIG overrides the pkg-config binary.
type PkgConfig struct {
	Module string
}

const pkgConfigScript = `"${PKG_CONFIG:-pkg-config}" --exists "$1"`

func (g PkgConfig) Satisfied(ctx context.Context) bool {
	code, err := shell.Run(ctx, shell.Command{
		Name:   "pkg_config",
		Script: pkgConfigScript,
		Args:   []string{g.Module},
	})
	if err != nil {
		log(ctx).Debug().Err(err).Str("module", g.Module).Msg("pkg-config probe failed")
		return false
	}
	return code == 0
}

func (g PkgConfig) String() string {
	return fmt.Sprintf("pkg_config(%q)", g.Module)
}

// Program holds if an executable called Name can be found on $PATH.
type Program struct {
	Name string
}

func (g Program) Satisfied(context.Context) bool {
	_, err := exec.LookPath(g.Name)
	return err == nil
}

func (g Program) String() string {
	return fmt.Sprintf("have_program(%q)", g.Name)
}

// EnvSet holds if the environment variable Name is set to a non-empty value.
type EnvSet struct {
	Name string
}

func (g EnvSet) Satisfied(context.Context) bool {
	return os.Getenv(g.Name) != ""
}

func (g EnvSet) String() string {
	return fmt.Sprintf("env_set(%q)", g.Name)
}

// Script holds if the shell script exits with status 0.
type Script struct {
	Source string
}

func (g Script) Satisfied(ctx context.Context) bool {
	code, err := shell.Run(ctx, shell.Command{Name: "guard", Script: g.Source})
	if err != nil {
		log(ctx).Debug().Err(err).Str("script", g.Source).Msg("guard script failed")
		return false
	}
	return code == 0
}

func (g Script) String() string {
	return fmt.Sprintf("shell(%q)", g.Source)
}

// AllOf holds if every contained guard holds. An empty AllOf always holds.
type AllOf []Guard

func (g AllOf) Satisfied(ctx context.Context) bool {
	for _, item := range g {
		if !item.Satisfied(ctx) {
			return false
		}
	}
	return true
}

func (g AllOf) String() string {
	parts := make([]string, len(g))
	for idx, item := range g {
		parts[idx] = item.String()
	}
	return "all_of(" + strings.Join(parts, ", ") + ")"
}

// Not inverts a guard.
type Not struct {
	Guard Guard
}

func (g Not) Satisfied(ctx context.Context) bool {
	return !g.Guard.Satisfied(ctx)
}

func (g Not) String() string {
	return "negate(" + g.Guard.String() + ")"
}

// Const is a guard with a fixed answer.
type Const bool

func (g Const) Satisfied(context.Context) bool {
	return bool(g)
}

func (g Const) String() string {
	if g {
		return "True"
	}
	return "False"
}
