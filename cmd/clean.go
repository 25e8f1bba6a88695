package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/knossos/packages/buildmatrix/pkg"
	matrixcmd "github.com/ngld/knossos/packages/buildmatrix/pkg/matrix/cmd"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [case...] [option=value...]",
		Short: "Remove working directories left behind by an aborted run",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := matrixcmd.NewSession(cmd, args)
			if err != nil {
				return err
			}

			runner, _, err := session.Runner()
			if err != nil {
				return err
			}

			for _, c := range session.Cases {
				dir := runner.WorkDir(c.Name)
				_, err := os.Lstat(dir)
				if err != nil {
					if eris.Is(err, os.ErrNotExist) {
						continue
					}
					return eris.Wrapf(err, "failed to check %s", dir)
				}

				pkg.PrintSubtask("removing " + dir)
				if err = os.RemoveAll(dir); err != nil {
					return eris.Wrapf(err, "failed to remove %s", dir)
				}
			}

			return nil
		},
	}
}
