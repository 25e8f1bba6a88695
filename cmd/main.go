package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ngld/knossos/packages/buildmatrix/pkg"
	matrixcmd "github.com/ngld/knossos/packages/buildmatrix/pkg/matrix/cmd"
)

var rootCmd = newRootCmd(matrixcmd.RootCmd)

func newRootCmd(root *cobra.Command) *cobra.Command {
	root.AddCommand(newListCmd())
	root.AddCommand(newCleanCmd())
	return root
}

// Execute runs the command line and returns the process exit status. SIGINT and SIGTERM cancel
// the run; the current case's working directory is still removed.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, rootCmd)
}

func execute(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var failed *matrixcmd.RunFailedError
	if errors.As(err, &failed) {
		return failed.ExitCode()
	}

	pkg.PrintError(fmt.Sprintf("%v", err))
	return 1
}
