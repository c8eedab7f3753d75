// Command hyperdash watches HAL resources and runs workflow transitions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/hyperdash/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
