// Command tsla bridges an LSP-speaking editor to a tsserver process.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/typescript-language-server/tsla/cmd/tsla/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitConfigError)
	}
}
