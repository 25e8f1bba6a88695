package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ngld/knossos/packages/buildmatrix/pkg"
	matrixcmd "github.com/ngld/knossos/packages/buildmatrix/pkg/matrix/cmd"
)

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list [case...] [option=value...]",
		Short: "Print the cases of the matrix and the commands they would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			check, err := cmd.Flags().GetBool("check")
			if err != nil {
				return err
			}

			session, err := matrixcmd.NewSession(cmd, args)
			if err != nil {
				return err
			}

			runner, b, err := session.Runner()
			if err != nil {
				return err
			}

			pkg.PrintTask(fmt.Sprintf("%s: %d case(s)", session.Definition.Source, len(session.Cases)))
			for _, c := range session.Cases {
				line := c.Name
				if c.Desc != "" {
					line += ": " + c.Desc
				}
				pkg.PrintTask(line)

				for _, command := range b.Commands(runner.WorkDir(c.Name), c.Flags) {
					pkg.PrintSubtask(command)
				}

				if c.Guard == nil {
					continue
				}

				if check {
					status := "[green]holds[reset]"
					if !c.Guard.Satisfied(session.Ctx) {
						status = "[yellow]does not hold, would be skipped[reset]"
					}
					pkg.PrintSubtask(fmt.Sprintf("if %s: %s", c.Guard.String(), session.Colors.Color(status)))
				} else {
					pkg.PrintSubtask("if " + c.Guard.String())
				}
			}

			if len(session.Definition.Options) > 0 {
				names := make([]string, 0, len(session.Definition.Options))
				for name := range session.Definition.Options {
					names = append(names, name)
				}
				sort.Strings(names)

				pkg.PrintTask("Options:")
				for _, name := range names {
					opt := session.Definition.Options[name]
					line := fmt.Sprintf("%s=%s", name, opt.Default())
					if opt.Help != "" {
						line += "  " + opt.Help
					}
					pkg.PrintSubtask(line)
				}
			}

			return nil
		},
	}

	listCmd.Flags().Bool("check", false, "evaluate guards and show which cases would be skipped")
	return listCmd
}
