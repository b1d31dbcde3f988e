// Command deduce evaluates Datalog programs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/deduce/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
