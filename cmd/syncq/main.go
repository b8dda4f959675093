// Package main is the syncq entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/cli"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	root := cli.NewRootCommand()
	root.Version = Version

	if err := root.ExecuteContext(context.Background()); err != nil {
		var exitErr *cli.ExitError
		// commands print their own failures; argument and flag errors are not
		if !errors.As(err, &exitErr) || exitErr.Err == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
