// Command jsgraph bundles JavaScript projects.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/jsgraph/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	// Commands print their own failures; usage errors from cobra are not.
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "jsgraph:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
