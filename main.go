package main

import (
	"os"

	"github.com/ngld/knossos/packages/buildmatrix/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
