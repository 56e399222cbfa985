// Command reactor runs, records and replays reactor scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/reactor/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
