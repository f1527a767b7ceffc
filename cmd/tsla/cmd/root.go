// Package cmd wires the urfave/cli/v3 commands for the tsla binary.
package cmd

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/typescript-language-server/tsla/internal/version"
)

// Exit codes
const (
	ExitSuccess = 0 // clean shutdown
	ExitConfigError = 1 // fatal configuration error
	ExitCrashLoop = 2 // unrecoverable tsserver crash loop
)

// NewApp builds the tsla CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name: "tsla",
		Usage: "Bridge an LSP editor to a tsserver process",
		Version: version.Version(),
		Description: `tsla drives a TypeScript/JavaScript tsserver process on behalf of any
editor that speaks the Language Server Protocol, translating between the
two wire protocols and managing tsserver's lifecycle.`,
		Commands: []*cli.Command{
			lspCommand(),
			versionCommand(),
		},
	}
}

// Execute runs the CLI application against os.Args.
func Execute() error {
	return NewApp().Run(context.Background(), os.Args)
}
