// Command kbq compiles and runs queries against a revisioned object store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kbquery/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
